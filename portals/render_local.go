package portals

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// BrowserRenderer drives a local headless browser and executes the same
// instruction script the remote proxy would. It exists for development and
// for portals that do not sit behind bot protection; production traffic
// goes through RemoteRenderer.
type BrowserRenderer struct {
	browser *rod.Browser
}

func NewBrowserRenderer() (*BrowserRenderer, error) {
	browser := rod.New()
	if err := browser.Connect(); err != nil {
		return nil, err
	}
	return &BrowserRenderer{browser: browser}, nil
}

func (b *BrowserRenderer) Close() error {
	return b.browser.Close()
}

func (b *BrowserRenderer) Render(ctx context.Context, req RenderRequest) (string, error) {
	incognito, err := b.browser.Incognito()
	if err != nil {
		return "", err
	}

	page := incognito.MustPage().Context(ctx)
	defer page.Close()

	wait := page.MustWaitNavigation()
	if err := page.Navigate(req.TargetURL); err != nil {
		return "", err
	}
	wait()

	for _, instruction := range b.expand(req.Instructions) {
		if err := b.apply(ctx, page, instruction); err != nil {
			return "", err
		}
	}

	page.MustWaitStable()

	return page.HTML()
}

// expand keeps script semantics identical to the remote service, which
// applies its own settle wait after the last instruction.
func (b *BrowserRenderer) expand(instructions []Instruction) []Instruction {
	return append(instructions, Instruction{Wait: 2000})
}

func (b *BrowserRenderer) apply(ctx context.Context, page *rod.Page, instruction Instruction) error {
	switch {
	case instruction.Wait > 0:
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(instruction.Wait) * time.Millisecond):
		}
	case len(instruction.Fill) == 2:
		element, err := page.Element(instruction.Fill[0])
		if err != nil {
			// Portals vary in their form markup. A selector that matches
			// nothing is skipped, same as the remote service does.
			log.Debug().Str("selector", instruction.Fill[0]).Msg("fill selector not found")
			return nil
		}
		if err := element.SelectAllText(); err != nil {
			return err
		}
		return element.Input(instruction.Fill[1])
	case instruction.Click != "":
		element, err := page.Element(instruction.Click)
		if err != nil {
			log.Debug().Str("selector", instruction.Click).Msg("click selector not found")
			return nil
		}
		return element.Click(proto.InputMouseButtonLeft, 1)
	}
	return nil
}
