package repository

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/campus-ticketing/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactory returns an empty store for one subtest.
type storeFactory func(t *testing.T) EventStore

var baseTime = time.Date(2026, time.March, 14, 18, 0, 0, 0, time.UTC)

func createEvent(t *testing.T, store EventStore, title string, startOffset time.Duration, capacity int) *model.Event {
	t.Helper()
	start := baseTime.Add(startOffset)
	event, err := store.Create(context.Background(), model.CreateEventRequest{
		Title:       title,
		Description: "campus event",
		Venue:       "Main Hall",
		StartTime:   start,
		EndTime:     start.Add(2 * time.Hour),
		Capacity:    capacity,
	})
	require.NoError(t, err)
	return event
}

func available(t *testing.T, store EventStore, id string) int {
	t.Helper()
	event, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return event.AvailableTickets
}

func intPtr(v int) *int { return &v }

func assertSameTimes(t *testing.T, want, got *model.Event) {
	t.Helper()
	assert.True(t, want.StartTime.Equal(got.StartTime), "start_time %v != %v", want.StartTime, got.StartTime)
	assert.True(t, want.EndTime.Equal(got.EndTime), "end_time %v != %v", want.EndTime, got.EndTime)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", want.CreatedAt, got.CreatedAt)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt), "updated_at %v != %v", want.UpdatedAt, got.UpdatedAt)
}

// runStoreSuite checks the inventory contract every backend must honour.
func runStoreSuite(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	t.Run("CreateSetsAvailableToCapacity", func(t *testing.T) {
		store := newStore(t)
		event := createEvent(t, store, "Jazz Night", 0, 40)

		assert.NotEmpty(t, event.ID)
		assert.Equal(t, 40, event.Capacity)
		assert.Equal(t, 40, event.AvailableTickets)

		got, err := store.GetByID(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, "Jazz Night", got.Title)
		assert.Equal(t, "Main Hall", got.Venue)
		assert.True(t, got.StartTime.Equal(baseTime))
		assert.True(t, got.EndTime.Equal(baseTime.Add(2*time.Hour)))
		assert.Equal(t, 40, got.AvailableTickets)
	})

	t.Run("ListOrdersByStartTimeThenID", func(t *testing.T) {
		store := newStore(t)
		late := createEvent(t, store, "Late", 48*time.Hour, 5)
		tieA := createEvent(t, store, "Tie A", time.Hour, 5)
		tieB := createEvent(t, store, "Tie B", time.Hour, 5)
		early := createEvent(t, store, "Early", 0, 5)

		events, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, events, 4)

		first, second := tieA.ID, tieB.ID
		if second < first {
			first, second = second, first
		}
		got := []string{events[0].ID, events[1].ID, events[2].ID, events[3].ID}
		assert.Equal(t, []string{early.ID, first, second, late.ID}, got)
	})

	t.Run("ListEmpty", func(t *testing.T) {
		store := newStore(t)
		events, err := store.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("GetByIDNotFound", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetByID(ctx, "does-not-exist")
		assert.ErrorIs(t, err, model.ErrEventNotFound)
	})

	t.Run("GetByTitleIsCaseInsensitive", func(t *testing.T) {
		store := newStore(t)
		later := createEvent(t, store, "Spring Gala", 24*time.Hour, 10)
		earlier := createEvent(t, store, "SPRING GALA", 0, 10)
		createEvent(t, store, "Spring Gala Afterparty", -time.Hour, 10)

		got, err := store.GetByTitle(ctx, "spring gala")
		require.NoError(t, err)
		assert.Equal(t, earlier.ID, got.ID)
		assert.NotEqual(t, later.ID, got.ID)

		_, err = store.GetByTitle(ctx, "Winter Gala")
		assert.ErrorIs(t, err, model.ErrEventNotFound)
	})

	t.Run("GetByTitleFoldsNonASCII", func(t *testing.T) {
		store := newStore(t)
		cafe := createEvent(t, store, "Café Ünity Night", 0, 10)
		strasse := createEvent(t, store, "Straßenfest", time.Hour, 10)

		for _, title := range []string{"CAFÉ ÜNITY NIGHT", "  café ünity night "} {
			got, err := store.GetByTitle(ctx, title)
			require.NoError(t, err, title)
			assert.Equal(t, cafe.ID, got.ID)
		}

		got, err := store.GetByTitle(ctx, "STRASSENFEST")
		require.NoError(t, err)
		assert.Equal(t, strasse.ID, got.ID)

		renamed := "Ölfest"
		_, err = store.Update(ctx, cafe.ID, model.EventPatch{Title: &renamed})
		require.NoError(t, err)
		got, err = store.GetByTitle(ctx, "ÖLFEST")
		require.NoError(t, err)
		assert.Equal(t, cafe.ID, got.ID)
		_, err = store.GetByTitle(ctx, "café ünity night")
		assert.ErrorIs(t, err, model.ErrEventNotFound)
	})

	t.Run("WritesReadBackExactly", func(t *testing.T) {
		store := newStore(t)
		ist := time.FixedZone("IST", 5*3600+1800)
		start := baseTime.Add(123456789 * time.Nanosecond).In(ist)
		created, err := store.Create(ctx, model.CreateEventRequest{
			Title:     "Precise Talk",
			StartTime: start,
			EndTime:   start.Add(time.Hour + 999*time.Nanosecond),
			Capacity:  3,
		})
		require.NoError(t, err)
		assert.Equal(t, 123456000, created.StartTime.Nanosecond())

		got, err := store.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assertSameTimes(t, created, got)

		venue := "Room 4"
		updated, err := store.Update(ctx, created.ID, model.EventPatch{Venue: &venue})
		require.NoError(t, err)
		got, err = store.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assertSameTimes(t, updated, got)

		_, err = store.Purchase(ctx, created.ID, 1)
		require.NoError(t, err)
		bookings, err := store.ListBookings(ctx, created.ID)
		require.NoError(t, err)
		require.Len(t, bookings, 1)
		assert.Equal(t, bookings[0].CreatedAt, bookings[0].CreatedAt.Truncate(time.Microsecond))
	})

	t.Run("PurchaseAfterCancel", func(t *testing.T) {
		store := newStore(t)
		event := createEvent(t, store, "Lecture", 0, 5)

		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := store.Purchase(cancelled, event.ID, 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrStorage)
		assert.True(t, model.Retryable(err))
		assert.Equal(t, 5, available(t, store, event.ID))

		bookings, err := store.ListBookings(ctx, event.ID)
		require.NoError(t, err)
		assert.Empty(t, bookings)
	})

	t.Run("PurchaseKeepsInvariant", func(t *testing.T) {
		store := newStore(t)
		event := createEvent(t, store, "Robotics Demo", 0, 10)

		sold := 0
		for _, qty := range []int{3, 2, 4, 1} {
			res, err := store.Purchase(ctx, event.ID, qty)
			require.NoError(t, err)
			sold += qty

			assert.Equal(t, event.ID, res.EventID)
			assert.NotEmpty(t, res.BookingID)
			assert.Equal(t, 10-sold, res.Remaining)
			assert.Equal(t, 10-sold, available(t, store, event.ID))
		}

		bookings, err := store.ListBookings(ctx, event.ID)
		require.NoError(t, err)
		require.Len(t, bookings, 4)
		total := 0
		for _, b := range bookings {
			assert.Equal(t, event.ID, b.EventID)
			total += b.Quantity
		}
		assert.Equal(t, 10, total)
	})

	t.Run("PurchaseIsAllOrNothing", func(t *testing.T) {
		store := newStore(t)
		event := createEvent(t, store, "Poetry Slam", 0, 3)

		_, err := store.Purchase(ctx, event.ID, 5)
		assert.ErrorIs(t, err, model.ErrNotEnoughTickets)
		assert.Equal(t, 3, available(t, store, event.ID))

		bookings, err := store.ListBookings(ctx, event.ID)
		require.NoError(t, err)
		assert.Empty(t, bookings)
	})

	t.Run("PurchaseRejectsInvalidQuantity", func(t *testing.T) {
		store := newStore(t)
		event := createEvent(t, store, "Chess Open", 0, 3)

		for _, qty := range []int{0, -1} {
			_, err := store.Purchase(ctx, event.ID, qty)
			assert.ErrorIs(t, err, model.ErrInvalidQuantity)
		}
		assert.Equal(t, 3, available(t, store, event.ID))
	})

	t.Run("PurchaseUnknownEvent", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Purchase(ctx, "does-not-exist", 1)
		assert.ErrorIs(t, err, model.ErrEventNotFound)
	})

	t.Run("CapacityTwoSellsOut", func(t *testing.T) {
		store := newStore(t)
		event := createEvent(t, store, "Small Seminar", 0, 2)

		res, err := store.Purchase(ctx, event.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Remaining)

		res, err = store.Purchase(ctx, event.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Remaining)

		_, err = store.Purchase(ctx, event.ID, 1)
		assert.ErrorIs(t, err, model.ErrNotEnoughTickets)
		assert.Equal(t, 0, available(t, store, event.ID))
	})

	t.Run("CapacityZeroRejectsPurchase", func(t *testing.T) {
		store := newStore(t)
		event := createEvent(t, store, "Closed Rehearsal", 0, 0)

		_, err := store.Purchase(ctx, event.ID, 1)
		assert.ErrorIs(t, err, model.ErrNotEnoughTickets)
		assert.Equal(t, 0, available(t, store, event.ID))
	})

	t.Run("ReadsAreRepeatable", func(t *testing.T) {
		store := newStore(t)
		event := createEvent(t, store, "Film Night", 0, 8)
		createEvent(t, store, "Quiz Night", time.Hour, 8)

		list1, err := store.List(ctx)
		require.NoError(t, err)
		list2, err := store.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, list1, list2)

		get1, err := store.GetByID(ctx, event.ID)
		require.NoError(t, err)
		get2, err := store.GetByID(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, get1, get2)
	})

	t.Run("CapacityShrinkGuard", func(t *testing.T) {
		store := newStore(t)
		event := createEvent(t, store, "Hackathon", 0, 10)
		_, err := store.Purchase(ctx, event.ID, 7)
		require.NoError(t, err)

		_, err = store.Update(ctx, event.ID, model.EventPatch{Capacity: intPtr(5)})
		assert.ErrorIs(t, err, model.ErrCapacityBelowSold)

		unchanged, err := store.GetByID(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, unchanged.Capacity)
		assert.Equal(t, 3, unchanged.AvailableTickets)

		updated, err := store.Update(ctx, event.ID, model.EventPatch{Capacity: intPtr(7)})
		require.NoError(t, err)
		assert.Equal(t, 7, updated.Capacity)
		assert.Equal(t, 0, updated.AvailableTickets)

		grown, err := store.Update(ctx, event.ID, model.EventPatch{Capacity: intPtr(12)})
		require.NoError(t, err)
		assert.Equal(t, 12, grown.Capacity)
		assert.Equal(t, 5, grown.AvailableTickets)
		assert.Equal(t, 5, available(t, store, event.ID))
	})

	t.Run("UpdateFields", func(t *testing.T) {
		store := newStore(t)
		event := createEvent(t, store, "Open Mic", 0, 10)

		title := "Open Mic Finals"
		venue := "Student Union"
		updated, err := store.Update(ctx, event.ID, model.EventPatch{Title: &title, Venue: &venue})
		require.NoError(t, err)
		assert.Equal(t, title, updated.Title)
		assert.Equal(t, venue, updated.Venue)
		assert.Equal(t, 10, updated.AvailableTickets)

		got, err := store.GetByID(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, title, got.Title)

		badEnd := baseTime.Add(-time.Hour)
		_, err = store.Update(ctx, event.ID, model.EventPatch{EndTime: &badEnd})
		assert.ErrorIs(t, err, model.ErrValidation)

		_, err = store.Update(ctx, "does-not-exist", model.EventPatch{Title: &title})
		assert.ErrorIs(t, err, model.ErrEventNotFound)
	})

	t.Run("ConcurrentPurchasesNeverOversell", func(t *testing.T) {
		store := newStore(t)
		const capacity, buyers = 20, 50
		event := createEvent(t, store, "Final Concert", 0, capacity)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
			soldOut   int
			remaining = make(map[int]bool)
			unexpect  []error
		)
		start := make(chan struct{})
		for range buyers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				res, err := store.Purchase(ctx, event.ID, 1)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
					remaining[res.Remaining] = true
				case errors.Is(err, model.ErrNotEnoughTickets):
					soldOut++
				default:
					unexpect = append(unexpect, err)
				}
			}()
		}
		close(start)
		wg.Wait()

		require.Empty(t, unexpect)
		assert.Equal(t, capacity, succeeded)
		assert.Equal(t, buyers-capacity, soldOut)
		assert.Equal(t, 0, available(t, store, event.ID))

		// Every granted purchase observed a distinct post-decrement count.
		assert.Len(t, remaining, capacity)
		for i := range capacity {
			assert.True(t, remaining[i], "remaining=%d never observed", i)
		}

		bookings, err := store.ListBookings(ctx, event.ID)
		require.NoError(t, err)
		assert.Len(t, bookings, capacity)
	})

	t.Run("ConcurrentPurchasesWithDeadlines", func(t *testing.T) {
		store := newStore(t)
		const capacity, buyers = 15, 45
		event := createEvent(t, store, "Midnight Run", 0, capacity)

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			granted  = make(map[string]bool)
			unexpect []error
		)
		start := make(chan struct{})
		for i := range buyers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				var (
					buyCtx context.Context
					cancel context.CancelFunc
				)
				switch i % 3 {
				case 0:
					buyCtx, cancel = context.WithCancel(context.Background())
					cancel()
				case 1:
					buyCtx, cancel = context.WithTimeout(context.Background(), time.Duration(i)*100*time.Microsecond)
				default:
					buyCtx, cancel = context.WithCancel(context.Background())
				}
				defer cancel()

				<-start
				res, err := store.Purchase(buyCtx, event.ID, 1)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					granted[res.BookingID] = true
				case errors.Is(err, model.ErrNotEnoughTickets), errors.Is(err, model.ErrStorage):
				default:
					unexpect = append(unexpect, err)
				}
			}()
		}
		close(start)
		wg.Wait()

		require.Empty(t, unexpect)
		assert.LessOrEqual(t, len(granted), capacity)

		bookings, err := store.ListBookings(ctx, event.ID)
		require.NoError(t, err)
		sold := 0
		for _, b := range bookings {
			sold += b.Quantity
		}
		for id := range granted {
			assert.True(t, slices.ContainsFunc(bookings, func(b model.Booking) bool { return b.ID == id }),
				"granted booking %s not recorded", id)
		}
		assert.Equal(t, capacity-sold, available(t, store, event.ID))
	})

	t.Run("ConcurrentPurchasesAcrossEvents", func(t *testing.T) {
		store := newStore(t)
		a := createEvent(t, store, "Event A", 0, 10)
		b := createEvent(t, store, "Event B", time.Hour, 10)

		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := range 20 {
			id := a.ID
			if i%2 == 1 {
				id = b.ID
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.Purchase(ctx, id, 1); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			t.Errorf("unexpected purchase error: %v", err)
		}
		assert.Equal(t, 0, available(t, store, a.ID))
		assert.Equal(t, 0, available(t, store, b.ID))
	})

	t.Run("ListBookingsUnknownEvent", func(t *testing.T) {
		store := newStore(t)
		_, err := store.ListBookings(ctx, "does-not-exist")
		assert.ErrorIs(t, err, model.ErrEventNotFound)
	})
}
