package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/eventreg/internal/catalog/domain"
	"github.com/smallbiznis/eventreg/internal/catalog/repository"
	"github.com/smallbiznis/eventreg/internal/catalog/service"
	"github.com/smallbiznis/eventreg/internal/clock"
	"github.com/smallbiznis/eventreg/internal/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()
	db := dbtest.Open(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := service.New(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: dbtest.Node(t),
		Repo:  repository.Provide(),
		Clock: clk,
	})
	return svc, clk
}

func TestCreateEventDerivesSlug(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	first, err := svc.Create(ctx, domain.CreateEventRequest{Name: "Go Meetup Jakarta", Capacity: 100})
	require.NoError(t, err)
	assert.Equal(t, "go-meetup-jakarta", first.Slug)
	assert.Equal(t, domain.EventStatusDraft, first.Status)
	assert.Equal(t, domain.RegistrationIndividual, first.RegistrationType)
	assert.Equal(t, "USD", first.Currency)

	second, err := svc.Create(ctx, domain.CreateEventRequest{Name: "Go Meetup Jakarta"})
	require.NoError(t, err)
	assert.Equal(t, "go-meetup-jakarta-"+second.ID.String(), second.Slug)
}

func TestCreateEventValidatesFee(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.Create(ctx, domain.CreateEventRequest{Name: "Paid", IsPaid: true})
	assert.ErrorIs(t, err, domain.ErrInvalidFee)

	_, err = svc.Create(ctx, domain.CreateEventRequest{Name: "Free", Fee: 100})
	assert.ErrorIs(t, err, domain.ErrInvalidFee)

	_, err = svc.Create(ctx, domain.CreateEventRequest{Name: "Neg", Capacity: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidCapacity)

	_, err = svc.Create(ctx, domain.CreateEventRequest{Name: "Club", RegistrationType: "club"})
	assert.ErrorIs(t, err, domain.ErrInvalidRegistrationType)
}

func TestUpdateStatusFollowsLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, clk := newService(t)

	event, err := svc.Create(ctx, domain.CreateEventRequest{Name: "Workshop", Capacity: 10})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, event.ID, domain.EventStatusCompleted)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	clk.Advance(time.Hour)
	published, err := svc.UpdateStatus(ctx, event.ID, domain.EventStatusPublished)
	require.NoError(t, err)
	assert.Equal(t, domain.EventStatusPublished, published.Status)
	assert.True(t, published.UpdatedAt.After(event.UpdatedAt))

	cancelled, err := svc.UpdateStatus(ctx, event.ID, domain.EventStatusCancelled)
	require.NoError(t, err)
	assert.True(t, cancelled.IsTerminal())

	_, err = svc.UpdateStatus(ctx, event.ID, domain.EventStatusPublished)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestGetMissingEvent(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Get(context.Background(), 42)
	if !errors.Is(err, domain.ErrEventNotFound) {
		t.Fatalf("expected event_not_found, got %v", err)
	}
}

func TestListEventsPaginates(t *testing.T) {
	ctx := context.Background()
	svc, clk := newService(t)

	for i := 0; i < 5; i++ {
		clk.Advance(time.Minute)
		_, err := svc.Create(ctx, domain.CreateEventRequest{Name: "Session"})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, domain.ListEventRequest{PageSize: 3})
	require.NoError(t, err)
	require.Len(t, page.Events, 3)
	assert.True(t, page.HasMore)

	next, err := svc.List(ctx, domain.ListEventRequest{PageSize: 3, PageToken: page.NextPageToken})
	require.NoError(t, err)
	assert.Len(t, next.Events, 2)
	assert.False(t, next.HasMore)

	_, err = svc.List(ctx, domain.ListEventRequest{Status: "archived"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}
