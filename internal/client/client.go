package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrPartLocked means a submission for the same (user, part) is still
	// inside its lock window.
	ErrPartLocked = errors.New("another submission for this part is in progress")
	// ErrRecentDuplicate means the exact same quantity was just submitted
	// for the part.
	ErrRecentDuplicate = errors.New("this exact quantity was just submitted")
	// ErrAlreadyProcessed means the generated key was already accepted.
	ErrAlreadyProcessed = errors.New("submission already processed")
	// ErrNotAttempted marks batch inputs skipped after a hard failure.
	ErrNotAttempted = errors.New("not attempted")
	// ErrInvalidInput is returned before any request for unusable input.
	ErrInvalidInput = errors.New("invalid input")
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status    int    `json:"-"`
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

// IsDuplicate reports whether err is the server flagging a benign
// duplicate.
func IsDuplicate(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Duplicate
}

// SubmitInput is one contribution to send.
type SubmitInput struct {
	ProjectID uint
	PartID    uint
	Quantity  int
}

// SubmitResult mirrors the API's submit response.
type SubmitResult struct {
	SubmissionID     uint  `json:"submission_id"`
	PartID           uint  `json:"part_id"`
	Progress         int   `json:"progress"`
	Goal             int   `json:"goal"`
	UserContribution int   `json:"user_contribution"`
	Completed        bool  `json:"completed"`
	ArchiveID        *uint `json:"archive_id,omitempty"`
}

// MutationResult mirrors the API's edit and delete response.
type MutationResult struct {
	SubmissionID uint  `json:"submission_id"`
	PartID       uint  `json:"part_id"`
	Progress     int   `json:"progress"`
	Goal         int   `json:"goal"`
	Completed    bool  `json:"completed"`
	ArchiveID    *uint `json:"archive_id,omitempty"`
}

// BatchResult is the outcome of one SubmitAll input.
type BatchResult struct {
	Input     SubmitInput
	Key       string
	Result    *SubmitResult
	Attempted bool
	Duplicate bool
	Err       error
}

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, e.g. http://localhost:8080/api/v1.
	BaseURL string
	// Token is sent as a bearer token when set.
	Token string
	// UserID is the caller's identity. It scopes keys, locks and duplicate
	// markers, and is sent as X-User-ID for servers running without auth.
	UserID     string
	HTTPClient *http.Client
	Tracker    *Tracker
	Keys       *KeyGen
	Logger     *zerolog.Logger
}

// Client talks to the production goals API with client-side duplicate
// protection.
type Client struct {
	base    string
	token   string
	user    string
	http    *http.Client
	tracker *Tracker
	keys    *KeyGen
	log     zerolog.Logger
}

// New validates opts and fills defaults.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrInvalidInput)
	}
	user := strings.TrimSpace(opts.UserID)
	if user == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	c := &Client{
		base:    base,
		token:   opts.Token,
		user:    user,
		http:    opts.HTTPClient,
		tracker: opts.Tracker,
		keys:    opts.Keys,
		log:     zerolog.Nop(),
	}
	if opts.Logger != nil {
		c.log = *opts.Logger
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 15 * time.Second}
	}
	if c.tracker == nil {
		c.tracker = NewTracker(TrackerOptions{Logger: opts.Logger})
	}
	if c.keys == nil {
		c.keys = NewKeyGen(c.tracker.clock)
	}
	return c, nil
}

// Tracker returns the client's tracker.
func (c *Client) Tracker() *Tracker { return c.tracker }

// Submit sends one contribution. The (user, part) lock is held for its
// full window on success so rapid repeats are refused locally; a hard
// failure releases it at once so the user can retry.
func (c *Client) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	if c.tracker.Remaining(c.user, in.PartID) > 0 {
		return nil, ErrPartLocked
	}
	if c.tracker.IsExactDuplicate(c.user, in.PartID, in.Quantity) {
		return nil, ErrRecentDuplicate
	}
	if !c.tracker.Lock(c.user, in.PartID) {
		return nil, ErrPartLocked
	}

	res, _, err := c.send(ctx, in)
	if err != nil && !IsDuplicate(err) {
		c.tracker.Release(c.user, in.PartID)
	}
	return res, err
}

// SubmitAll sends inputs one after another, waiting for each answer.
// Rows follow the same (user, part) locks as Submit: a row whose part is
// still locked, or a recent exact duplicate, is skipped without a request.
// Server duplicates are benign and the chain moves on; any other failure
// stops it and the remaining inputs are reported with ErrNotAttempted.
func (c *Client) SubmitAll(ctx context.Context, inputs []SubmitInput) []BatchResult {
	out := make([]BatchResult, len(inputs))
	stopped := false
	for i, in := range inputs {
		out[i].Input = in
		if stopped {
			out[i].Err = ErrNotAttempted
			continue
		}
		if err := validate(in); err != nil {
			out[i].Err = err
			stopped = true
			continue
		}
		if c.tracker.Remaining(c.user, in.PartID) > 0 {
			out[i].Err = ErrPartLocked
			continue
		}
		if c.tracker.IsExactDuplicate(c.user, in.PartID, in.Quantity) {
			out[i].Duplicate = true
			out[i].Err = ErrRecentDuplicate
			continue
		}
		if !c.tracker.Lock(c.user, in.PartID) {
			out[i].Err = ErrPartLocked
			continue
		}

		out[i].Attempted = true
		res, key, err := c.send(ctx, in)
		out[i].Key = key
		out[i].Result = res
		out[i].Err = err
		switch {
		case err == nil:
		case IsDuplicate(err):
			out[i].Duplicate = true
		default:
			c.tracker.Release(c.user, in.PartID)
			c.log.Warn().Err(err).Uint("part_id", in.PartID).Int("index", i).Msg("batch stopped")
			stopped = true
		}
	}
	return out
}

// send posts one submission with a fresh key and updates the tracker on
// success or duplicate.
func (c *Client) send(ctx context.Context, in SubmitInput) (*SubmitResult, string, error) {
	key := c.keys.Generate(c.user, in.PartID, in.Quantity)
	if c.tracker.IsProcessed(key) {
		return nil, key, ErrAlreadyProcessed
	}

	body := map[string]any{
		"project_id":    in.ProjectID,
		"part_id":       in.PartID,
		"quantity":      in.Quantity,
		"submission_id": key,
	}
	var res SubmitResult
	err := c.do(ctx, http.MethodPost, "/submissions", key, body, &res)
	if err == nil || IsDuplicate(err) {
		c.tracker.MarkProcessed(key)
		c.tracker.Record(c.user, in.PartID, in.Quantity)
	}
	if err != nil {
		return nil, key, err
	}
	return &res, key, nil
}

// Edit changes the quantity of one of the caller's submissions.
func (c *Client) Edit(ctx context.Context, submissionID uint, quantity int) (*MutationResult, error) {
	if submissionID == 0 || quantity <= 0 {
		return nil, fmt.Errorf("%w: submission id and a positive quantity are required", ErrInvalidInput)
	}
	key := c.keys.EditKey(c.user, submissionID, quantity)
	if c.tracker.IsProcessed(key) {
		return nil, ErrAlreadyProcessed
	}
	var res MutationResult
	err := c.do(ctx, http.MethodPut, "/submissions/"+utoa(submissionID), key,
		map[string]any{"quantity": quantity, "edit_id": key}, &res)
	return c.finishMutation(key, &res, err)
}

// Delete removes one of the caller's submissions.
func (c *Client) Delete(ctx context.Context, submissionID uint) (*MutationResult, error) {
	if submissionID == 0 {
		return nil, fmt.Errorf("%w: submission id is required", ErrInvalidInput)
	}
	key := c.keys.DeleteKey(c.user, submissionID)
	if c.tracker.IsProcessed(key) {
		return nil, ErrAlreadyProcessed
	}
	var res MutationResult
	err := c.do(ctx, http.MethodDelete, "/submissions/"+utoa(submissionID), key,
		map[string]any{"delete_id": key}, &res)
	return c.finishMutation(key, &res, err)
}

func (c *Client) finishMutation(key string, res *MutationResult, err error) (*MutationResult, error) {
	if err == nil || IsDuplicate(err) {
		c.tracker.MarkProcessed(key)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// do sends a JSON request and decodes a 2xx body into out. Any other
// status becomes an *APIError.
func (c *Client) do(ctx context.Context, method, path, key string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-User-ID", c.user)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, apiErr)
		}
		if resp.StatusCode == http.StatusConflict && apiErr.Code == "duplicate" {
			apiErr.Duplicate = true
		}
		c.log.Debug().
			Int("status", resp.StatusCode).
			Str("code", apiErr.Code).
			Str("request_id", apiErr.RequestID).
			Str("path", path).
			Msg("api error")
		return apiErr
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s %s: decode: %w", method, path, err)
		}
	}
	return nil
}

func validate(in SubmitInput) error {
	if in.PartID == 0 || in.Quantity <= 0 {
		return fmt.Errorf("%w: part id and a positive quantity are required (part %d, quantity %d)",
			ErrInvalidInput, in.PartID, in.Quantity)
	}
	return nil
}
