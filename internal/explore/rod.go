package explore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"smartqa-backend/internal/shared/telemetry"
)

const (
	defaultNavTimeout = 30 * time.Second
	maxElements       = 150
	settleDelay       = 1500 * time.Millisecond
)

const captureJS = `() => {
	const max = %d;
	const pick = Array.from(document.querySelectorAll(
		'input, button, select, textarea, a[href], [role], label, h1, h2, h3, form, table'
	)).slice(0, max);
	const labelFor = (el) => {
		if (el.labels && el.labels.length) return el.labels[0].innerText;
		return el.getAttribute('aria-label') || '';
	};
	return {
		url: location.href,
		title: document.title,
		text: (document.body && document.body.innerText || '').slice(0, 20000),
		elements: pick.map((el) => ({
			tag: el.tagName.toLowerCase(),
			role: el.getAttribute('role') || '',
			type: el.getAttribute('type') || '',
			id: el.id || '',
			name: el.getAttribute('name') || '',
			testId: el.getAttribute('data-testid') || '',
			label: (labelFor(el) || '').slice(0, 120),
			placeholder: el.getAttribute('placeholder') || '',
			text: (el.innerText || el.value || '').trim().slice(0, 120),
			href: el.getAttribute('href') || '',
			required: !!el.required,
			disabled: !!el.disabled,
		})),
	};
}`

// RodSnapshotter captures pages with a headless Chromium driven by rod.
// Each call launches and closes its own browser.
type RodSnapshotter struct {
	Bin        string
	Headless   bool
	NavTimeout time.Duration
}

// Snapshot loads target.URL, signs in when credentials match form fields,
// and captures the resulting page.
func (r *RodSnapshotter) Snapshot(ctx context.Context, target Target) (Snapshot, error) {
	l := launcher.New().Headless(r.Headless)
	if strings.TrimSpace(r.Bin) != "" {
		l = l.Bin(r.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return Snapshot{}, fmt.Errorf("launch browser: %w", err)
	}
	defer l.Kill()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return Snapshot{}, fmt.Errorf("connect browser: %w", err)
	}
	defer func() { _ = browser.Close() }()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return Snapshot{}, fmt.Errorf("open page: %w", err)
	}
	if err := r.navigate(ctx, page, target.URL); err != nil {
		return Snapshot{}, err
	}

	signedIn := false
	if len(target.Credentials) > 0 {
		signedIn, err = signIn(page, target)
		if err != nil {
			telemetry.Warn("explore.sign_in_failed", map[string]any{"url": target.URL, "error": err.Error()})
		}
		if signedIn {
			_ = page.Timeout(r.navTimeout()).WaitLoad()
			wait(ctx, settleDelay)
		}
	}

	snap, err := capture(ctx, page)
	if err != nil {
		return Snapshot{}, err
	}
	snap.SignedIn = signedIn
	return snap, nil
}

func (r *RodSnapshotter) navTimeout() time.Duration {
	if r.NavTimeout <= 0 {
		return defaultNavTimeout
	}
	return r.NavTimeout
}

func (r *RodSnapshotter) navigate(ctx context.Context, page *rod.Page, url string) error {
	p := page.Context(ctx).Timeout(r.navTimeout())
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	wait(ctx, settleDelay)
	return nil
}

// signIn fills inputs matching credential field names and submits the last
// one with Enter. It reports whether anything was submitted.
func signIn(page *rod.Page, target Target) (bool, error) {
	var last *rod.Element
	for _, c := range target.Credentials {
		sel := credentialSelector(c.FieldName)
		if sel == "" || c.Value == "" {
			continue
		}
		els, err := page.Elements(sel)
		if err != nil {
			return false, err
		}
		if len(els) == 0 {
			continue
		}
		if err := els.First().Input(c.Value); err != nil {
			return false, fmt.Errorf("fill %s: %w", c.FieldName, err)
		}
		last = els.First()
	}
	if last == nil {
		return false, nil
	}
	if err := last.Type(input.Enter); err != nil {
		return false, fmt.Errorf("submit: %w", err)
	}
	return true, nil
}

// credentialSelector matches an input by name, id, autocomplete hint or
// placeholder. Password-like fields also match type=password.
func credentialSelector(field string) string {
	f := strings.ToLower(strings.TrimSpace(field))
	f = strings.NewReplacer(`"`, "", `\`, "").Replace(f)
	if f == "" {
		return ""
	}
	sels := []string{
		fmt.Sprintf(`input[name="%s" i]`, f),
		fmt.Sprintf(`input[id="%s" i]`, f),
		fmt.Sprintf(`input[autocomplete="%s" i]`, f),
		fmt.Sprintf(`input[placeholder*="%s" i]`, f),
	}
	switch f {
	case "password", "senha", "pass":
		sels = append(sels, `input[type="password"]`)
	case "email", "e-mail":
		sels = append(sels, `input[type="email"]`)
	}
	return strings.Join(sels, ", ")
}

func capture(ctx context.Context, page *rod.Page) (Snapshot, error) {
	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           fmt.Sprintf(captureJS, maxElements),
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("capture page: %w", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return Snapshot{}, fmt.Errorf("capture page: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode capture: %w", err)
	}
	return snap, nil
}

func wait(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
