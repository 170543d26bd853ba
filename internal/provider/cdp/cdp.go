// Package cdp implements a provider that drives a roster list inside an
// already-authenticated Chrome tab over the DevTools protocol.
//
// Every selector comes from configuration; nothing about a particular
// platform's markup is assumed. Lists rendered inside a shadow root are
// reached through an optional host selector.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/crimson-sun/rollcall/internal/provider"
)

const defaultCallTimeout = 10 * time.Second

func init() {
	provider.Register("cdp", func(cfg provider.Config) (provider.Provider, error) {
		return New(cfg)
	})
}

// Selectors locate the roster and the fields of each item.
type Selectors struct {
	Host             string `json:"host"`             // optional shadow host
	List             string `json:"list"`             // list element
	Item             string `json:"item"`             // item elements within the list
	Scroll           string `json:"scroll"`           // closest scrollable ancestor; empty means the list itself
	KeyAttr          string `json:"keyAttr"`          // per-item ordinal attribute
	LabelSelector    string `json:"labelSelector"`    // element holding the display label
	LabelAttr        string `json:"labelAttr"`        // attribute fallback for the label
	StatusSelector   string `json:"statusSelector"`   // element carrying the status hint
	StatusAttr       string `json:"statusAttr"`       // attribute of the status element; empty reads its text
	StableIDSelector string `json:"stableIdSelector"` // element holding a platform identifier
}

// selectorsFrom reads selectors from provider Extra keys, applying defaults.
func selectorsFrom(extra map[string]string) (Selectors, error) {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(extra[key]); v != "" {
			return v
		}
		return fallback
	}
	s := Selectors{
		Host:             get("host_selector", ""),
		List:             get("list_selector", ""),
		Item:             get("item_selector", "li"),
		Scroll:           get("scroll_selector", ""),
		KeyAttr:          get("key_attr", "data-index"),
		LabelSelector:    get("label_selector", ""),
		LabelAttr:        get("label_attr", "aria-label"),
		StatusSelector:   get("status_selector", ""),
		StatusAttr:       get("status_attr", ""),
		StableIDSelector: get("stable_id_selector", ""),
	}
	if s.List == "" {
		return Selectors{}, errors.New("cdp provider: list_selector is required")
	}
	return s, nil
}

// rosterScript runs in the page. It returns {found:false} when the host or
// the list is missing.
const rosterScript = `(function(sel, op, offset) {
  var root = document;
  if (sel.host) {
    var host = document.querySelector(sel.host);
    if (!host || !host.shadowRoot) { return {found: false}; }
    root = host.shadowRoot;
  }
  var list = root.querySelector(sel.list);
  if (!list) { return {found: false}; }
  var scroller = sel.scroll ? (list.closest(sel.scroll) || list) : list;
  if (op === "scroll") {
    scroller.scrollTop = offset;
    return {found: true};
  }
  if (op === "extent") {
    return {found: true, scroll_height: scroller.scrollHeight, client_height: scroller.clientHeight};
  }
  var items = list.querySelectorAll(sel.item);
  var out = [];
  for (var i = 0; i < items.length; i++) {
    var it = items[i];
    var text = function(q) {
      if (!q) { return ""; }
      var el = it.querySelector(q);
      return el ? el.textContent.trim() : "";
    };
    var label = text(sel.labelSelector) || (sel.labelAttr ? (it.getAttribute(sel.labelAttr) || "") : "") || it.textContent;
    var status = "";
    if (sel.statusSelector) {
      var s = it.querySelector(sel.statusSelector);
      if (s) { status = (sel.statusAttr ? s.getAttribute(sel.statusAttr) : s.textContent) || ""; }
    }
    out.push({
      key: sel.keyAttr ? (it.getAttribute(sel.keyAttr) || "") : "",
      label: (label || "").trim(),
      status: status.trim(),
      stable_id: text(sel.stableIdSelector)
    });
  }
  return {found: true, entities: out};
})(%s, %q, %d)`

type scriptResult struct {
	Found        bool             `json:"found"`
	ScrollHeight int              `json:"scroll_height"`
	ClientHeight int              `json:"client_height"`
	Entities     []provider.Entry `json:"entities"`
}

func buildScript(sel Selectors, op string, offset int) (string, error) {
	raw, err := json.Marshal(sel)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(rosterScript, raw, op, offset), nil
}

// pickTarget returns the first page target whose URL contains match.
func pickTarget(targets []*target.Info, match string) *target.Info {
	for _, t := range targets {
		if t.Type == "page" && strings.Contains(t.URL, match) {
			return t
		}
	}
	return nil
}

// Provider evaluates the roster script in a browser tab.
type Provider struct {
	sel         Selectors
	tabCtx      context.Context
	cancel      context.CancelFunc
	callTimeout time.Duration
}

// New attaches to the browser at cfg.Endpoint (a DevTools websocket or HTTP
// URL). With Extra["url_match"] it attaches to the first matching tab;
// otherwise it opens a tab and navigates to Extra["url"] when given.
func New(cfg provider.Config) (*Provider, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("cdp provider: devtools endpoint is required")
	}
	sel, err := selectorsFrom(cfg.Extra)
	if err != nil {
		return nil, err
	}
	callTimeout := defaultCallTimeout
	if raw := cfg.Extra["timeout"]; raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			callTimeout = d
		}
	}

	// Cancelling a chromedp tab context closes the tab, so only the allocator
	// cancel is kept; it drops the websocket and every derived context.
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(context.Background(), cfg.Endpoint)
	browserCtx, _ := chromedp.NewContext(allocCtx)
	tabCtx := browserCtx

	if match := cfg.Extra["url_match"]; match != "" {
		targets, err := chromedp.Targets(browserCtx)
		if err != nil {
			cancelAlloc()
			return nil, fmt.Errorf("cdp provider: list targets: %w", err)
		}
		t := pickTarget(targets, match)
		if t == nil {
			cancelAlloc()
			return nil, fmt.Errorf("cdp provider: no page target matching %q", match)
		}
		tabCtx, _ = chromedp.NewContext(browserCtx, chromedp.WithTargetID(t.TargetID))
	}

	var actions []chromedp.Action
	if u := cfg.Extra["url"]; u != "" && cfg.Extra["url_match"] == "" {
		actions = append(actions, chromedp.Navigate(u))
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		cancelAlloc()
		return nil, fmt.Errorf("cdp provider: attach: %w", err)
	}

	return &Provider{sel: sel, tabCtx: tabCtx, cancel: cancelAlloc, callTimeout: callTimeout}, nil
}

func (p *Provider) ListVisible(ctx context.Context) ([]provider.Entry, error) {
	res, err := p.eval(ctx, "list", 0)
	if err != nil {
		return nil, err
	}
	return res.Entities, nil
}

func (p *Provider) ScrollTo(ctx context.Context, offset int) error {
	_, err := p.eval(ctx, "scroll", offset)
	return err
}

func (p *Provider) Extent(ctx context.Context) (provider.Extent, error) {
	res, err := p.eval(ctx, "extent", 0)
	if err != nil {
		return provider.Extent{}, err
	}
	return provider.Extent{ScrollHeight: res.ScrollHeight, ClientHeight: res.ClientHeight}, nil
}

// Close drops the DevTools connection. The tab itself is left to the browser.
func (p *Provider) Close() error {
	p.cancel()
	return nil
}

func (p *Provider) eval(ctx context.Context, op string, offset int) (scriptResult, error) {
	script, err := buildScript(p.sel, op, offset)
	if err != nil {
		return scriptResult{}, fmt.Errorf("cdp provider: build script: %w", err)
	}

	// Bound the call by the caller's deadline as well as our own timeout.
	runCtx, cancel := context.WithTimeout(p.tabCtx, p.callTimeout)
	defer cancel()
	if d, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, d)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var res scriptResult
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, &res)); err != nil {
		return scriptResult{}, fmt.Errorf("cdp provider: %s: %w", op, err)
	}
	if !res.Found {
		return scriptResult{}, fmt.Errorf("cdp provider: %s: %w", op, provider.ErrUnavailable)
	}
	return res, nil
}
