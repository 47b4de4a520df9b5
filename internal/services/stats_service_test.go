package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStats_ActiveProjects(t *testing.T) {
	e := newEnv(t, newTestDB(t))
	ctx := context.Background()
	pid, parts := e.project(t, 10, 10)
	e.mustSubmit(t, "a", pid, parts[0], 5)

	got, err := e.stats.ActiveProjects(ctx)
	if err != nil || len(got) != 1 {
		t.Fatalf("ActiveProjects: %+v err=%v", got, err)
	}
	p := got[0]
	if p.ProjectID != pid || p.ActiveParts != 2 || p.Goal != 20 || p.Progress != 5 || p.PercentComplete != 25 {
		t.Fatalf("summary: %+v", p)
	}

	unf, _ := e.stats.UnfulfilledProjects(ctx)
	if len(unf) != 1 {
		t.Fatalf("unfulfilled = %d", len(unf))
	}
}

func TestStats_ArchivesAndRecentlyCompleted(t *testing.T) {
	e := newEnv(t, newTestDB(t))
	ctx := context.Background()
	pid, parts := e.project(t, 3)
	e.mustSubmit(t, "a", pid, parts[0], 1)
	e.mustSubmit(t, "b", pid, parts[0], 2)

	recent, err := e.stats.RecentlyCompleted(ctx)
	if err != nil || len(recent) != 1 {
		t.Fatalf("RecentlyCompleted: %+v err=%v", recent, err)
	}
	if recent[0].ProjectID != pid || len(recent[0].Parts) != 1 || recent[0].Parts[0].Contributions[0].UserID != "b" {
		t.Fatalf("archive: %+v", recent[0])
	}

	archives, err := e.stats.ProjectArchives(ctx, pid)
	if err != nil || len(archives) != 1 {
		t.Fatalf("ProjectArchives: %+v err=%v", archives, err)
	}
	if _, err := e.stats.ProjectArchives(ctx, pid+1); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}

	e.clock.Advance(DefaultRecentWindow + time.Minute)
	recent, _ = e.stats.RecentlyCompleted(ctx)
	if len(recent) != 0 {
		t.Fatalf("archive should age out of the recent window")
	}
}

func TestStats_Contributions(t *testing.T) {
	e := newEnv(t, newTestDB(t))
	ctx := context.Background()
	pid, parts := e.project(t, 100, 100)
	e.mustSubmit(t, "a", pid, parts[0], 4)
	e.mustSubmit(t, "a", pid, parts[1], 2)
	e.mustSubmit(t, "b", pid, parts[0], 1)

	mine, err := e.stats.UserContributions(ctx, "a")
	if err != nil {
		t.Fatalf("UserContributions: %v", err)
	}
	// helpers_test parts: 2.5 m and 12 g per unit.
	if mine.UserID != "a" || mine.TotalUnits != 6 || mine.TotalLength != 15 || mine.TotalWeight != 72 || len(mine.Parts) != 2 {
		t.Fatalf("user report: %+v", mine)
	}
	if _, err := e.stats.UserContributions(ctx, ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	all, err := e.stats.GroupContributions(ctx)
	if err != nil || all.TotalUnits != 7 || all.UserID != "" {
		t.Fatalf("group report: %+v err=%v", all, err)
	}

	top, err := e.stats.TopContributors(ctx, pid, 1)
	if err != nil || len(top) != 1 || top[0].UserID != "a" || top[0].Total != 6 || top[0].Username != "name-a" {
		t.Fatalf("top: %+v err=%v", top, err)
	}
}

func TestStats_UserSubmissions(t *testing.T) {
	e := newEnv(t, newTestDB(t))
	ctx := context.Background()
	pid, parts := e.project(t, 100)
	e.mustSubmit(t, "a", pid, parts[0], 4)
	e.clock.Advance(time.Second)
	e.mustSubmit(t, "a", pid, parts[0], 2)
	e.mustSubmit(t, "b", pid, parts[0], 9)

	subs, err := e.stats.UserSubmissions(ctx, "a", parts[0])
	if err != nil || len(subs) != 2 || subs[0].Quantity != 2 {
		t.Fatalf("UserSubmissions: %+v err=%v", subs, err)
	}
	if _, err := e.stats.UserSubmissions(ctx, "a", parts[0]+50); !errors.Is(err, ErrPartNotFound) {
		t.Fatalf("expected ErrPartNotFound, got %v", err)
	}

	// Restart: earlier submissions leave the current cycle.
	e.clock.Advance(time.Second)
	if _, err := e.projects.StartProject(ctx, pid); err != nil {
		t.Fatalf("restart: %v", err)
	}
	subs, _ = e.stats.UserSubmissions(ctx, "a", parts[0])
	if len(subs) != 0 {
		t.Fatalf("expected no current-cycle submissions, got %d", len(subs))
	}
}
