package client

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	base36      = "0123456789abcdefghijklmnopqrstuvwxyz"
	randomChars = 9
)

// KeyGen builds idempotency keys for one client session. The session id is
// fixed for the generator's lifetime, so two tabs (or processes) never
// produce the same key even within the same millisecond.
type KeyGen struct {
	session string
	clock   Clock
}

// NewKeyGen returns a generator with a fresh session id. A nil clock uses
// the wall clock.
func NewKeyGen(clock Clock) *KeyGen {
	if clock == nil {
		clock = SystemClock{}
	}
	return &KeyGen{session: uuid.NewString(), clock: clock}
}

// Session returns the generator's session id.
func (g *KeyGen) Session() string { return g.session }

// Generate returns a submission key:
// <user>_<part>_<qty>_<unixms>_<session>_<random>.
func (g *KeyGen) Generate(user string, part uint, quantity int) string {
	return join(user, utoa(part), strconv.Itoa(quantity), g.millis(), g.session, randomString())
}

// EditKey returns an edit key: edit_<user>_<submission>_<qty>_<unixms>_<random>.
func (g *KeyGen) EditKey(user string, submission uint, quantity int) string {
	return join("edit", user, utoa(submission), strconv.Itoa(quantity), g.millis(), randomString())
}

// DeleteKey returns a delete key: delete_<user>_<submission>_<unixms>_<random>.
func (g *KeyGen) DeleteKey(user string, submission uint) string {
	return join("delete", user, utoa(submission), g.millis(), randomString())
}

func (g *KeyGen) millis() string {
	return strconv.FormatInt(g.clock.Now().UnixMilli(), 10)
}

func join(parts ...string) string { return strings.Join(parts, "_") }

func utoa(v uint) string { return strconv.FormatUint(uint64(v), 10) }

// randomString returns randomChars base36 characters from crypto/rand.
func randomString() string {
	var sb strings.Builder
	sb.Grow(randomChars)
	radix := big.NewInt(int64(len(base36)))
	for i := 0; i < randomChars; i++ {
		n, err := rand.Int(rand.Reader, radix)
		if err != nil {
			// crypto/rand does not fail on supported platforms.
			panic(err)
		}
		sb.WriteByte(base36[n.Int64()])
	}
	return sb.String()
}
