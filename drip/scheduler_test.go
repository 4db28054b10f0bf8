package drip

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdrizzle0202/hiddencash/common"
	"github.com/tdrizzle0202/hiddencash/common/config"
	"github.com/tdrizzle0202/hiddencash/common/logger"
	"github.com/tdrizzle0202/hiddencash/common/models"
	"github.com/tdrizzle0202/hiddencash/portals"
)

// dripCache is an in-memory CacheService for the scheduler's slice of the
// interface. Each cache entry holds a pool of not-yet-revealed claims.
type dripCache struct {
	mu           sync.Mutex
	seq          int
	candidates   []models.DripCandidate
	pools        map[string][]models.RevealedClaim
	dripComplete map[string]bool
	fetchPages   map[string]int
}

func newDripCache() *dripCache {
	return &dripCache{
		pools:        map[string][]models.RevealedClaim{},
		dripComplete: map[string]bool{},
		fetchPages:   map[string]int{},
	}
}

func (d *dripCache) addCandidate(c models.DripCandidate, pool []models.RevealedClaim) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c.UnrevealedCount = len(pool)
	d.candidates = append(d.candidates, c)
	d.pools[c.CacheID] = pool
}

func (d *dripCache) DripCandidates(_ context.Context, limit int) ([]models.DripCandidate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := append([]models.DripCandidate(nil), d.candidates...)
	if len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].UnrevealedCount = len(d.pools[out[i].CacheID])
	}
	return out, nil
}

func (d *dripCache) RevealClaims(_ context.Context, _, cacheID string, limit int) ([]models.RevealedClaim, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pool := d.pools[cacheID]
	n := limit
	if n > len(pool) {
		n = len(pool)
	}
	revealed := append([]models.RevealedClaim(nil), pool[:n]...)
	d.pools[cacheID] = pool[n:]
	return revealed, nil
}

func (d *dripCache) UnrevealedCount(_ context.Context, _, cacheID string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pools[cacheID]), nil
}

func (d *dripCache) CompleteDrip(_ context.Context, cacheID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dripComplete[cacheID] {
		return false, nil
	}
	d.dripComplete[cacheID] = true
	return true, nil
}

func (d *dripCache) SavePageClaims(_ context.Context, cacheID string, _ int, claims []models.ClaimRecord) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ids []string
	for _, claim := range claims {
		d.seq++
		id := "claim-" + strconv.Itoa(d.seq)
		d.pools[cacheID] = append(d.pools[cacheID], models.RevealedClaim{
			ClaimID:    id,
			OwnerName:  claim.OwnerName,
			HolderName: claim.HolderName,
			Amount:     claim.Amount,
			AmountText: claim.AmountText,
		})
		ids = append(ids, id)
	}
	return ids, nil
}

func (d *dripCache) LinkClaimsToUser(_ context.Context, _, _ string, _ []string, revealed bool) error {
	if revealed {
		return errors.New("drip-fetched claims must start hidden")
	}
	return nil
}

func (d *dripCache) UpdateAfterFetch(_ context.Context, cacheID string, page int, _ *int, _ int, _ bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetchPages[cacheID] = page
	return nil
}

func (d *dripCache) CheckCache(context.Context, string, string, string) (models.CacheCheck, error) {
	panic("not used by scheduler")
}

func (d *dripCache) ClaimEntry(context.Context, string, string, string, string) (string, bool, error) {
	panic("not used by scheduler")
}

func (d *dripCache) GetEntry(context.Context, string) (models.CacheEntry, error) {
	panic("not used by scheduler")
}

func (d *dripCache) ListClaimIDs(context.Context, string) ([]string, error) {
	panic("not used by scheduler")
}

func (d *dripCache) HasUserClaims(context.Context, string) (bool, error) {
	panic("not used by scheduler")
}

func (d *dripCache) ListUserClaims(context.Context, string) ([]models.UserClaimView, error) {
	panic("not used by scheduler")
}

func (d *dripCache) UpdateClaimStatus(context.Context, string, string, string) error {
	panic("not used by scheduler")
}

type fakeGate struct {
	mu      sync.Mutex
	lapsed  map[string]bool
	failing map[string]bool
}

func newFakeGate() *fakeGate {
	return &fakeGate{lapsed: map[string]bool{}, failing: map[string]bool{}}
}

func (f *fakeGate) IsEntitled(_ context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[userID] {
		return false, errors.New("entitlement provider unavailable")
	}
	return !f.lapsed[userID], nil
}

type notification struct {
	userID string
	count  int
	amount float64
}

type fakeNotifier struct {
	mu        sync.Mutex
	newClaims []notification
	completed []string
}

func (f *fakeNotifier) NotifyNewClaims(_ context.Context, userID string, count int, totalAmount float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newClaims = append(f.newClaims, notification{userID: userID, count: count, amount: totalAmount})
}

func (f *fakeNotifier) NotifyAuditComplete(_ context.Context, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, userID)
}

// pageRenderer serves one canned page for every render request.
type pageRenderer struct {
	html string
	err  error
}

func (p *pageRenderer) Render(context.Context, portals.RenderRequest) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.html, nil
}

func claimWith(amount float64) models.RevealedClaim {
	return models.RevealedClaim{OwnerName: "DOE, JANE", Amount: &amount, AmountText: fmt.Sprintf("$%.2f", amount)}
}

func claimUnder100() models.RevealedClaim {
	return models.RevealedClaim{OwnerName: "DOE, JANE", AmountText: "UNDER $100"}
}

func newScheduler(cache *dripCache, gate *fakeGate, notifier *fakeNotifier, renderer portals.RenderClient) *Scheduler {
	return NewScheduler(
		config.DripConfig{},
		cache,
		gate,
		portals.NewFetcher(renderer),
		notifier,
		logger.NewEventLog(nil),
		nil,
	)
}

func candidate(cacheID, userID string) models.DripCandidate {
	return models.DripCandidate{
		CacheID:         cacheID,
		UserID:          userID,
		SearchProfileID: "profile-1",
		FirstName:       "Jane",
		LastName:        "Doe",
		StateCode:       "NY",
		CurrentPage:     1,
	}
}

func TestRunBatchRevealsInBatchesOfFive(t *testing.T) {
	cache := newDripCache()
	pool := []models.RevealedClaim{
		claimUnder100(),
		claimWith(100),
		claimWith(200),
		claimWith(300),
		claimWith(400),
		claimWith(500),
		claimWith(600),
	}
	cache.addCandidate(candidate("cache-1", "user-1"), pool)

	notifier := &fakeNotifier{}
	s := newScheduler(cache, newFakeGate(), notifier, &pageRenderer{html: "<html></html>"})

	report, err := s.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, models.DripReport{Processed: 1, Errors: 0, Total: 1}, report)

	remaining, err := cache.UnrevealedCount(context.Background(), "user-1", "cache-1")
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)

	require.Len(t, notifier.newClaims, 1)
	assert.Equal(t, "user-1", notifier.newClaims[0].userID)
	assert.Equal(t, 5, notifier.newClaims[0].count)
	// Masked listing counts as 50 in the notification estimate only.
	assert.InDelta(t, 1050.0, notifier.newClaims[0].amount, 0.001)
	assert.Empty(t, notifier.completed)
	assert.False(t, cache.dripComplete["cache-1"])
}

func TestRunBatchAuditCompleteExactlyOnce(t *testing.T) {
	cache := newDripCache()
	cache.addCandidate(candidate("cache-1", "user-1"), nil)

	notifier := &fakeNotifier{}
	s := newScheduler(cache, newFakeGate(), notifier, &pageRenderer{html: "<html></html>"})

	report, err := s.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, []string{"user-1"}, notifier.completed)
	assert.True(t, cache.dripComplete["cache-1"])

	// The candidate query would normally stop returning a completed entry,
	// but even if it reappears the notification must not repeat.
	report, err = s.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Processed)
	assert.Len(t, notifier.completed, 1)
	assert.Empty(t, notifier.newClaims)
}

func TestRunBatchNotDoneWhilePagesRemain(t *testing.T) {
	cache := newDripCache()
	c := candidate("cache-1", "user-1")
	total := 3
	c.TotalPages = &total
	cache.addCandidate(c, nil)

	notifier := &fakeNotifier{}
	s := newScheduler(cache, newFakeGate(), notifier, &pageRenderer{html: "<html></html>"})

	report, err := s.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, 0, report.Errors)
	assert.Empty(t, notifier.completed)
	assert.False(t, cache.dripComplete["cache-1"])
}

func TestRunBatchSkipsLapsedSubscriber(t *testing.T) {
	cache := newDripCache()
	cache.addCandidate(candidate("cache-1", "user-1"), []models.RevealedClaim{claimWith(100)})

	gate := newFakeGate()
	gate.lapsed["user-1"] = true
	notifier := &fakeNotifier{}
	s := newScheduler(cache, gate, notifier, &pageRenderer{html: "<html></html>"})

	report, err := s.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, models.DripReport{Processed: 0, Errors: 0, Total: 1}, report)

	remaining, err := cache.UnrevealedCount(context.Background(), "user-1", "cache-1")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining, "lapsed subscribers keep their claims hidden")
	assert.Empty(t, notifier.newClaims)
}

func TestRunBatchTopsUpFromPortal(t *testing.T) {
	cache := newDripCache()
	c := candidate("cache-1", "user-1")
	total := 2
	c.TotalPages = &total
	c.NeedsFetch = true
	cache.addCandidate(c, []models.RevealedClaim{claimWith(100), claimWith(200)})

	notifier := &fakeNotifier{}
	s := newScheduler(cache, newFakeGate(), notifier, &pageRenderer{html: dripResultsPage(3)})

	report, err := s.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 2, cache.fetchPages["cache-1"], "should fetch the next page before revealing")

	require.Len(t, notifier.newClaims, 1)
	assert.Equal(t, 5, notifier.newClaims[0].count)

	remaining, err := cache.UnrevealedCount(context.Background(), "user-1", "cache-1")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestRunBatchFetchFailureStillReveals(t *testing.T) {
	cache := newDripCache()
	c := candidate("cache-1", "user-1")
	total := 3
	c.TotalPages = &total
	c.NeedsFetch = true
	cache.addCandidate(c, []models.RevealedClaim{claimWith(100), claimWith(200), claimWith(300)})

	notifier := &fakeNotifier{}
	renderer := &pageRenderer{err: &common.FetchError{StateCode: "NY", Status: 403}}
	s := newScheduler(cache, newFakeGate(), notifier, renderer)

	report, err := s.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, models.DripReport{Processed: 1, Errors: 0, Total: 1}, report)

	require.Len(t, notifier.newClaims, 1)
	assert.Equal(t, 3, notifier.newClaims[0].count)
	assert.InDelta(t, 600.0, notifier.newClaims[0].amount, 0.001)
}

func TestRunBatchIsolatesCandidateFailures(t *testing.T) {
	cache := newDripCache()
	cache.addCandidate(candidate("cache-1", "user-1"), []models.RevealedClaim{claimWith(100)})
	cache.addCandidate(candidate("cache-2", "user-2"), []models.RevealedClaim{claimWith(200)})

	gate := newFakeGate()
	gate.failing["user-1"] = true
	notifier := &fakeNotifier{}
	s := newScheduler(cache, gate, notifier, &pageRenderer{html: "<html></html>"})

	report, err := s.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, models.DripReport{Processed: 1, Errors: 1, Total: 2}, report)

	require.Len(t, notifier.newClaims, 1)
	assert.Equal(t, "user-2", notifier.newClaims[0].userID)
}

func dripResultsPage(count int) string {
	var rows strings.Builder
	for i := 0; i < count; i++ {
		rows.WriteString(fmt.Sprintf(`<tr>
			<td headers="propownerName"><span class="text-uppercase">DOE, JANE %d</span></td>
			<td headers="propholderName"><span class="text-uppercase">HOLDER %d</span></td>
			<td headers="propaddress"><span class="text-uppercase">%d MAIN ST</span></td>
			<td headers="propcity"><span class="text-uppercase">ALBANY</span></td>
			<td headers="propstate"><span class="text-uppercase">NY</span></td>
			<td headers="propzip"><span class="text-uppercase">12207</span></td>
			<td>$%d.00</td>
		</tr>`, i, i, i+1, (i+1)*10))
	}
	return fmt.Sprintf(`<html><body>
		<p>Your search returned %d unclaimed properties.</p>
		<div>$1 $2 $3 $4</div>
		<table>%s</table>
	</body></html>`, count, rows.String())
}
