package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdrizzle0202/hiddencash/common"
	"github.com/tdrizzle0202/hiddencash/common/logger"
	"github.com/tdrizzle0202/hiddencash/common/models"
	"github.com/tdrizzle0202/hiddencash/common/utils"
	"github.com/tdrizzle0202/hiddencash/portals"
)

const testUser = "4f6f9f9e-1f4b-4a7f-9d8e-0c2b3a4d5e6f"

// fakeEntry mirrors one cache row.
type fakeEntry struct {
	id           string
	key          string
	resultsCount int
	currentPage  int
	totalPages   *int
	isComplete   bool
	expired      bool
	profileID    string
	claimIDs     []string
}

type fakeLink struct {
	userID   string
	claimID  string
	revealed bool
}

// fakeCache is an in-memory CacheService covering the operations the
// orchestrator drives.
type fakeCache struct {
	mu      sync.Mutex
	seq     int
	entries map[string]*fakeEntry
	byKey   map[string]*fakeEntry
	claims  map[string]models.ClaimRecord
	links   []*fakeLink
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		entries: map[string]*fakeEntry{},
		byKey:   map[string]*fakeEntry{},
		claims:  map[string]models.ClaimRecord{},
	}
}

func cacheKey(first, last, state string) string {
	return utils.NormalizeName(first) + "|" + utils.NormalizeName(last) + "|" + state
}

func (f *fakeCache) nextID(prefix string) string {
	f.seq++
	return prefix + "-" + strconv.Itoa(f.seq)
}

func (f *fakeCache) CheckCache(_ context.Context, first, last, state string) (models.CacheCheck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.byKey[cacheKey(first, last, state)]
	if !ok || entry.expired {
		return models.CacheCheck{}, nil
	}
	return models.CacheCheck{
		IsValid:      true,
		CacheID:      entry.id,
		ResultsCount: entry.resultsCount,
		TotalPages:   entry.totalPages,
	}, nil
}

func (f *fakeCache) ClaimEntry(_ context.Context, first, last, state, profileID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := cacheKey(first, last, state)
	if entry, ok := f.byKey[key]; ok {
		if !entry.expired {
			return entry.id, false, nil
		}
		entry.expired = false
		entry.resultsCount = 0
		entry.currentPage = 1
		entry.totalPages = nil
		entry.isComplete = false
		entry.profileID = profileID
		entry.claimIDs = nil
		return entry.id, true, nil
	}
	entry := &fakeEntry{
		id:          f.nextID("cache"),
		key:         key,
		currentPage: 1,
		profileID:   profileID,
	}
	f.entries[entry.id] = entry
	f.byKey[key] = entry
	return entry.id, true, nil
}

func (f *fakeCache) SavePageClaims(_ context.Context, cacheID string, _ int, claims []models.ClaimRecord) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry := f.entries[cacheID]
	var ids []string
	for _, claim := range claims {
		id := f.nextID("claim")
		f.claims[id] = claim
		entry.claimIDs = append(entry.claimIDs, id)
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeCache) UpdateAfterFetch(_ context.Context, cacheID string, page int, totalPages *int, newClaims int, isComplete bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry := f.entries[cacheID]
	entry.currentPage = page
	if totalPages != nil {
		entry.totalPages = totalPages
	}
	entry.resultsCount += newClaims
	entry.isComplete = isComplete
	return nil
}

func (f *fakeCache) GetEntry(_ context.Context, cacheID string) (models.CacheEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry := f.entries[cacheID]
	return models.CacheEntry{
		ID:           entry.id,
		ResultsCount: entry.resultsCount,
		CurrentPage:  entry.currentPage,
		TotalPages:   entry.totalPages,
		IsComplete:   entry.isComplete,
	}, nil
}

func (f *fakeCache) ListClaimIDs(_ context.Context, cacheID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.entries[cacheID].claimIDs...), nil
}

func (f *fakeCache) LinkClaimsToUser(_ context.Context, userID, _ string, claimIDs []string, revealed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, claimID := range claimIDs {
		exists := false
		for _, link := range f.links {
			if link.userID == userID && link.claimID == claimID {
				exists = true
				break
			}
		}
		if !exists {
			f.links = append(f.links, &fakeLink{userID: userID, claimID: claimID, revealed: revealed})
		}
	}
	return nil
}

func (f *fakeCache) HasUserClaims(_ context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, link := range f.links {
		if link.userID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCache) UnrevealedCount(context.Context, string, string) (int, error) {
	panic("not used by orchestrator")
}

func (f *fakeCache) RevealClaims(context.Context, string, string, int) ([]models.RevealedClaim, error) {
	panic("not used by orchestrator")
}

func (f *fakeCache) DripCandidates(context.Context, int) ([]models.DripCandidate, error) {
	panic("not used by orchestrator")
}

func (f *fakeCache) CompleteDrip(context.Context, string) (bool, error) {
	panic("not used by orchestrator")
}

func (f *fakeCache) ListUserClaims(context.Context, string) ([]models.UserClaimView, error) {
	panic("not used by orchestrator")
}

func (f *fakeCache) UpdateClaimStatus(context.Context, string, string, string) error {
	panic("not used by orchestrator")
}

func (f *fakeCache) userLinks(userID string) []*fakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeLink
	for _, link := range f.links {
		if link.userID == userID {
			out = append(out, link)
		}
	}
	return out
}

type fakeProfiles struct{}

func (fakeProfiles) HasProfile(context.Context, string) (bool, error) { return false, nil }
func (fakeProfiles) CreateProfile(context.Context, string, string, string) (string, error) {
	return "profile-1", nil
}

type jobRecord struct {
	state    string
	priority int
	status   string
	errMsg   string
}

type fakeJobs struct {
	mu   sync.Mutex
	seq  int
	jobs map[string]*jobRecord
}

func newFakeJobs() *fakeJobs { return &fakeJobs{jobs: map[string]*jobRecord{}} }

func (f *fakeJobs) CreateJob(_ context.Context, _, state string, priority int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := "job-" + strconv.Itoa(f.seq)
	f.jobs[id] = &jobRecord{state: state, priority: priority, status: "pending"}
	return id, nil
}

func (f *fakeJobs) MarkStarted(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].status = "processing"
	return nil
}

func (f *fakeJobs) MarkCompleted(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].status = "completed"
	return nil
}

func (f *fakeJobs) MarkFailed(_ context.Context, id, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].status = "failed"
	f.jobs[id].errMsg = msg
	return nil
}

func (f *fakeJobs) CountForUser(context.Context, string) (models.JobCounts, error) {
	return models.JobCounts{}, nil
}

func (f *fakeJobs) byState(state string) *jobRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.state == state {
			return job
		}
	}
	return nil
}

type fakeSubscriptions struct{ subscribed bool }

func (f *fakeSubscriptions) IsSubscribed(context.Context, string) (bool, error) {
	return f.subscribed, nil
}
func (f *fakeSubscriptions) SetSubscribed(context.Context, string, bool) error { return nil }

// stateRenderer serves canned HTML per state, keyed off the portal URL.
type stateRenderer struct {
	mu    sync.Mutex
	pages map[string]string
	calls map[string]int
}

func newStateRenderer() *stateRenderer {
	return &stateRenderer{pages: map[string]string{}, calls: map[string]int{}}
}

func (s *stateRenderer) serve(state, html string) {
	s.pages[state] = html
}

func (s *stateRenderer) Render(_ context.Context, req portals.RenderRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for state, html := range s.pages {
		portal, err := portals.Lookup(state)
		if err != nil {
			continue
		}
		if strings.HasPrefix(req.TargetURL, portal.URL) {
			s.calls[state]++
			return html, nil
		}
	}
	return "<html><body>No results found.</body></html>", nil
}

func (s *stateRenderer) callCount(state string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[state]
}

func resultsPage(count int) string {
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
		</tr>`, i, i, i+1, (i+1)*100))
	}
	return fmt.Sprintf(`<html><body>
		<p>Your search returned %d unclaimed properties.</p>
		<div>$1 $2 $3 $4</div>
		<table>%s</table>
	</body></html>`, count, rows.String())
}

type fixture struct {
	orchestrator *Orchestrator
	cache        *fakeCache
	jobs         *fakeJobs
	renderer     *stateRenderer
}

func newFixture(subscribed bool) *fixture {
	cache := newFakeCache()
	jobs := newFakeJobs()
	renderer := newStateRenderer()
	orchestrator := NewOrchestrator(
		portals.NewFetcher(renderer),
		cache,
		fakeProfiles{},
		jobs,
		&fakeSubscriptions{subscribed: subscribed},
		logger.NewEventLog(nil),
	)
	return &fixture{orchestrator: orchestrator, cache: cache, jobs: jobs, renderer: renderer}
}

func TestSearchFreeTierRevealsImmediately(t *testing.T) {
	f := newFixture(false)
	f.renderer.serve("NY", resultsPage(3))

	summary, err := f.orchestrator.Search(context.Background(), Request{
		UserID:    testUser,
		FirstName: "Jane",
		LastName:  "Doe",
		States:    []string{"NY"},
	})
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	assert.True(t, summary.Results[0].Success)
	assert.Equal(t, 3, summary.Results[0].Claims)
	assert.Equal(t, 3, summary.TotalClaims)

	check, err := f.cache.CheckCache(context.Background(), "Jane", "Doe", "NY")
	require.NoError(t, err)
	assert.True(t, check.IsValid)
	assert.Equal(t, 3, check.ResultsCount)
	assert.Nil(t, check.TotalPages)

	entry, err := f.cache.GetEntry(context.Background(), check.CacheID)
	require.NoError(t, err)
	assert.True(t, entry.IsComplete)

	links := f.cache.userLinks(testUser)
	require.Len(t, links, 3)
	for _, link := range links {
		assert.True(t, link.revealed)
	}

	job := f.jobs.byState("NY")
	require.NotNil(t, job)
	assert.Equal(t, "completed", job.status)
	assert.Equal(t, 0, job.priority)
}

func TestSearchSubscriberLinksHidden(t *testing.T) {
	f := newFixture(true)
	f.renderer.serve("NY", resultsPage(2))

	summary, err := f.orchestrator.Search(context.Background(), Request{
		UserID:    testUser,
		FirstName: "Jane",
		LastName:  "Doe",
		States:    []string{"NY"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalClaims)

	links := f.cache.userLinks(testUser)
	require.Len(t, links, 2)
	for _, link := range links {
		assert.False(t, link.revealed, "subscriber claims wait for the drip")
	}

	job := f.jobs.byState("NY")
	require.NotNil(t, job)
	assert.Equal(t, 1, job.priority)
}

func TestSearchAlreadySearched(t *testing.T) {
	f := newFixture(false)
	f.cache.links = append(f.cache.links, &fakeLink{userID: testUser, claimID: "claim-0"})

	_, err := f.orchestrator.Search(context.Background(), Request{
		UserID:    testUser,
		FirstName: "Jane",
		LastName:  "Doe",
		States:    []string{"NY"},
	})
	assert.ErrorIs(t, err, common.ErrAlreadySearched)
}

func TestSearchQuotaExceeded(t *testing.T) {
	f := newFixture(false)

	_, err := f.orchestrator.Search(context.Background(), Request{
		UserID:    testUser,
		FirstName: "Jane",
		LastName:  "Doe",
		States:    []string{"NY", "CA", "TX", "WA"},
	})
	assert.ErrorIs(t, err, common.ErrQuotaExceeded)
	assert.Empty(t, f.jobs.jobs, "a rejected search must not create jobs")
}

func TestSearchSubscriberHasNoQuota(t *testing.T) {
	f := newFixture(true)
	f.renderer.serve("NY", resultsPage(1))

	summary, err := f.orchestrator.Search(context.Background(), Request{
		UserID:    testUser,
		FirstName: "Jane",
		LastName:  "Doe",
		States:    []string{"NY", "CA", "TX", "WA", "OH"},
	})
	require.NoError(t, err)
	assert.Len(t, summary.Results, 5)
}

func TestSearchRejectsInvalidRequest(t *testing.T) {
	f := newFixture(false)

	tests := []struct {
		name string
		req  Request
	}{
		{"missing first name", Request{UserID: testUser, LastName: "Doe", States: []string{"NY"}}},
		{"malformed user id", Request{UserID: "not-a-uuid", FirstName: "Jane", LastName: "Doe", States: []string{"NY"}}},
		{"no states", Request{UserID: testUser, FirstName: "Jane", LastName: "Doe"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.orchestrator.Search(context.Background(), tc.req)
			require.Error(t, err)

			var invalid validator.ValidationErrors
			assert.ErrorAs(t, err, &invalid)
		})
	}
	assert.Empty(t, f.jobs.jobs)
}

func TestSearchInvalidState(t *testing.T) {
	f := newFixture(false)

	_, err := f.orchestrator.Search(context.Background(), Request{
		UserID:    testUser,
		FirstName: "Jane",
		LastName:  "Doe",
		States:    []string{"XX"},
	})
	assert.ErrorIs(t, err, common.ErrInvalidState)
}

func TestSearchUnsupportedStatesFallToDefault(t *testing.T) {
	f := newFixture(false)
	f.renderer.serve("NY", resultsPage(1))

	// FL is a known portal the scraper cannot drive yet.
	summary, err := f.orchestrator.Search(context.Background(), Request{
		UserID:    testUser,
		FirstName: "Jane",
		LastName:  "Doe",
		States:    []string{"FL"},
	})
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, "NY", summary.Results[0].State)
	assert.Equal(t, 1, summary.TotalClaims)
}

func TestSearchFallbackStates(t *testing.T) {
	f := newFixture(false)
	// TX and NY come up empty; CA has one hit.
	f.renderer.serve("CA", resultsPage(1))

	summary, err := f.orchestrator.Search(context.Background(), Request{
		UserID:    testUser,
		FirstName: "Jane",
		LastName:  "Doe",
		States:    []string{"TX"},
	})
	require.NoError(t, err)

	states := make([]string, 0, len(summary.Results))
	for _, outcome := range summary.Results {
		states = append(states, outcome.State)
	}
	assert.Equal(t, []string{"TX", "NY", "CA"}, states)
	assert.Equal(t, 1, summary.TotalClaims)
}

func TestSearchCacheHitSkipsFetch(t *testing.T) {
	f := newFixture(false)
	f.renderer.serve("NY", resultsPage(2))

	// Prime the cache under a different user.
	_, err := f.orchestrator.Search(context.Background(), Request{
		UserID:    "11111111-1111-4111-8111-111111111111",
		FirstName: "Jane",
		LastName:  "Doe",
		States:    []string{"NY"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, f.renderer.callCount("NY"))

	summary, err := f.orchestrator.Search(context.Background(), Request{
		UserID:    testUser,
		FirstName: "Jane",
		LastName:  "Doe",
		States:    []string{"NY"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalClaims)
	assert.Equal(t, 1, f.renderer.callCount("NY"), "cache hit must not re-scrape")
	assert.Len(t, f.cache.userLinks(testUser), 2)
}

func TestSearchBlockedStateIsolated(t *testing.T) {
	f := newFixture(false)
	f.renderer.serve("TX", "<p>Please check the box to continue.</p>")
	f.renderer.serve("NY", resultsPage(1))

	summary, err := f.orchestrator.Search(context.Background(), Request{
		UserID:    testUser,
		FirstName: "Jane",
		LastName:  "Doe",
		States:    []string{"TX", "NY"},
	})
	require.NoError(t, err)

	require.Len(t, summary.Results, 2)
	assert.False(t, summary.Results[0].Success)
	assert.Contains(t, summary.Results[0].Error, "blocked")
	assert.True(t, summary.Results[1].Success)
	assert.Equal(t, 1, summary.TotalClaims)

	job := f.jobs.byState("TX")
	require.NotNil(t, job)
	assert.Equal(t, "failed", job.status)
}
