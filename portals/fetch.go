package portals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tdrizzle0202/hiddencash/common"
)

const (
	lastNameSelector  = "input[name='lastName'], input[id*='lastName'], input[id*='last']"
	firstNameSelector = "input[name='firstName'], input[id*='firstName'], input[id*='first']"
	submitSelector    = "button[type='submit'], input[type='submit']"
)

// pagerSelector targets page N of the results pager. The dedicated pager
// list puts First/Previous before the page numbers, hence nth-child(N+2);
// generic bootstrap pagination only has Previous, hence nth-child(N+1).
func pagerSelector(page int) string {
	return fmt.Sprintf(
		"[aria-label='Page %d'], #topPropertySearchResultsPager li:nth-child(%d) a, .pagination li:nth-child(%d) a",
		page, page+2, page+1,
	)
}

// searchScript is the instruction sequence for a first-page search: let the
// SPA boot, fill both name fields, settle, submit, then wait out the
// server-side render of the result grid.
func searchScript(firstName, lastName string) []Instruction {
	return []Instruction{
		{Wait: 8000},
		{Fill: []string{lastNameSelector, lastName}},
		{Fill: []string{firstNameSelector, firstName}},
		{Wait: 2000},
		{Click: submitSelector},
		{Wait: 10000},
	}
}

// pageScript re-runs the search and then clicks through to the requested
// page. Portals keep no server-side search session, so every page fetch
// starts from a fresh form submit.
func pageScript(firstName, lastName string, page int) []Instruction {
	return []Instruction{
		{Wait: 6000},
		{Fill: []string{lastNameSelector, lastName}},
		{Fill: []string{firstNameSelector, firstName}},
		{Wait: 1000},
		{Click: submitSelector},
		{Wait: 10000},
		{Click: pagerSelector(page)},
		{Wait: 8000},
	}
}

// Fetcher wraps a RenderClient with portal resolution, retry with
// exponential backoff, and block detection.
type Fetcher struct {
	client RenderClient

	// maxRetries counts attempts after the first one.
	maxRetries int
	backoff    time.Duration
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewFetcher(client RenderClient) *Fetcher {
	return &Fetcher{
		client:     client,
		maxRetries: 3,
		backoff:    2 * time.Second,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// FetchPage renders one result page for a name search and returns the raw
// HTML. Transient render failures are retried with 2s, 4s, 8s backoff;
// permanent failures and context cancellation propagate immediately.
func (f *Fetcher) FetchPage(ctx context.Context, stateCode, firstName, lastName string, page int) (string, error) {
	portal, err := Lookup(stateCode)
	if err != nil {
		return "", err
	}

	var script []Instruction
	if page <= 1 {
		script = searchScript(firstName, lastName)
	} else {
		script = pageScript(firstName, lastName, page)
	}

	// Cache buster keeps the proxy layer from replaying a previous
	// visitor's rendered page.
	targetURL := fmt.Sprintf("%s?_cb=%d", portal.URL, f.now().UnixMilli())

	req := RenderRequest{
		TargetURL:    targetURL,
		Instructions: script,
	}

	delay := f.backoff
	for attempt := 0; ; attempt++ {
		html, err := f.client.Render(ctx, req)
		if err == nil {
			return html, nil
		}

		var fetchErr *common.FetchError
		if !errors.As(err, &fetchErr) || !fetchErr.Retryable() || attempt >= f.maxRetries {
			return "", err
		}

		log.Warn().
			Err(err).
			Str("state_code", stateCode).
			Int("page", page).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("retrying page render")

		if err := f.sleep(ctx, delay); err != nil {
			return "", err
		}
		delay *= 2
	}
}

// FetchResults renders a page, rejects bot challenges, and parses the
// result grid. This is the unit both the initial search and the drip
// worker build on.
func (f *Fetcher) FetchResults(ctx context.Context, stateCode, firstName, lastName string, page int) (*PageResult, error) {
	html, err := f.FetchPage(ctx, stateCode, firstName, lastName, page)
	if err != nil {
		return nil, err
	}

	if IsBlocked(html) {
		return nil, fmt.Errorf("%s page %d: %w", stateCode, page, common.ErrBlocked)
	}

	return ParsePage(html, stateCode)
}
