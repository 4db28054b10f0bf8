package portals

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/tdrizzle0202/hiddencash/common"
	"github.com/tdrizzle0202/hiddencash/common/config"
)

// RemoteRenderer fetches pages through an anti-bot rendering proxy. The
// proxy runs a real browser, executes the instruction script, and returns
// the final DOM.
type RemoteRenderer struct {
	cfg    config.RenderConfig
	client *resty.Client
}

func NewRemoteRenderer(cfg config.RenderConfig) *RemoteRenderer {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0)

	return &RemoteRenderer{
		cfg:    cfg,
		client: client,
	}
}

func (r *RemoteRenderer) Render(ctx context.Context, req RenderRequest) (string, error) {
	instructions, err := json.Marshal(req.Instructions)
	if err != nil {
		return "", fmt.Errorf("marshal instructions: %w", err)
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"apikey":          r.cfg.APIKey,
			"url":             req.TargetURL,
			"js_render":       "true",
			"antibot":         "true",
			"premium_proxy":   "true",
			"wait":            strconv.FormatUint(uint64(r.cfg.WaitMillis), 10),
			"js_instructions": string(instructions),
		}).
		Get(r.cfg.BaseURL)
	if err != nil {
		return "", &common.FetchError{Err: err}
	}

	if resp.StatusCode() != 200 {
		log.Warn().
			Int("status", resp.StatusCode()).
			Str("url", req.TargetURL).
			Msg("render service returned non-200")
		return "", &common.FetchError{Status: resp.StatusCode()}
	}

	return resp.String(), nil
}
