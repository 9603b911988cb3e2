package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jonathan/credit-applier/internal/types"
)

// DefaultPortalURL is the address of the member portal.
const DefaultPortalURL = "https://kiber-one.club/"

const (
	// DefaultElementTimeout bounds every wait for a control or page transition.
	DefaultElementTimeout = 10 * time.Second
	// DefaultSearchTimeout bounds the wait for search results. Searches resolve quickly or not at all.
	DefaultSearchTimeout = 1 * time.Second
	// DefaultSettleDelay is the pause after opening the member list.
	DefaultSettleDelay = 3 * time.Second

	pollInterval = 100 * time.Millisecond
)

// Option labels of the sign dropdown in the transaction form.
const (
	signCredit = "Начисление"
	signDebit  = "Списание"
)

// Selectors locate the portal controls. XPath expressions start with '/' or '('.
type Selectors struct {
	LoginField    string
	PasswordField string
	LoginSubmit   string
	ListLink      string
	SearchInput   string
	BalanceButton string
	Sign          string
	Cause         string
	Comment       string
	Amount        string
	Save          string
	ModalClose    string
}

// DefaultSelectors returns the selectors of the production portal layout.
func DefaultSelectors() Selectors {
	return Selectors{
		LoginField:    `input[name="login"]`,
		PasswordField: `input[name="password"]`,
		LoginSubmit:   `//*[@id="loginForm"]/table/tbody/tr[4]/td/input`,
		ListLink:      `/html/body/div[1]/div/div/div/div/div[1]/div/div[2]/div[1]/a`,
		SearchInput:   `/html/body/div[1]/div/div/div/div/div[2]/div[2]/div/div/div[2]/input`,
		BalanceButton: `/html/body/div[1]/div/div/div/div/div[2]/div[2]/div/div/div[1]/div[1]/span/span`,
		Sign:          `#fc_field_sign_id`,
		Cause:         `#fc_field_cause_id`,
		Comment:       `#fc_field_comment_id`,
		Amount:        `#fc_field_amount_id`,
		Save:          `[name="sendsave"]`,
		ModalClose:    `.uss_modal_close`,
	}
}

// Options configures a Chrome session.
type Options struct {
	PortalURL      string
	Headless       bool
	ExecPath       string // empty uses the Chrome found on PATH
	ElementTimeout time.Duration
	SearchTimeout  time.Duration
	SettleDelay    time.Duration
	Selectors      Selectors
}

// DefaultOptions returns options for a headless session against the production portal.
func DefaultOptions() *Options {
	return &Options{
		PortalURL:      DefaultPortalURL,
		Headless:       true,
		ElementTimeout: DefaultElementTimeout,
		SearchTimeout:  DefaultSearchTimeout,
		SettleDelay:    DefaultSettleDelay,
		Selectors:      DefaultSelectors(),
	}
}

// Chrome is an automation session backed by one Chrome tab.
// It is not safe for concurrent use; the portal is a single stateful UI session.
type Chrome struct {
	opts   Options
	logger *zap.Logger

	tab         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc

	closeOnce sync.Once
}

// NewChrome launches a browser. The browser lives until Close, independent of ctx.
func NewChrome(ctx context.Context, opts *Options, logger *zap.Logger) (*Chrome, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := *opts
	if o.PortalURL == "" {
		o.PortalURL = DefaultPortalURL
	}
	if o.ElementTimeout <= 0 {
		o.ElementTimeout = DefaultElementTimeout
	}
	if o.SearchTimeout <= 0 {
		o.SearchTimeout = DefaultSearchTimeout
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if o.Selectors == (Selectors{}) {
		o.Selectors = DefaultSelectors()
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", o.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1280, 900),
	)
	if o.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(o.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tab, tabCancel := chromedp.NewContext(allocCtx)

	// An empty run starts the browser so launch failures surface here.
	if err := chromedp.Run(tab); err != nil {
		tabCancel()
		allocCancel()
		return nil, &SessionError{Message: "failed to start browser", Cause: err}
	}

	logger.Debug("browser started", zap.Bool("headless", o.Headless), zap.String("portal", o.PortalURL))

	return &Chrome{
		opts:        o,
		logger:      logger,
		tab:         tab,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
	}, nil
}

// run executes actions in the tab under a bound derived from the tab context.
// Cancelling ctx also cancels the actions.
func (c *Chrome) run(ctx context.Context, step string, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.tab.Err(); err != nil {
		return &SessionError{Message: "browser tab is closed", Cause: err}
	}

	tctx, cancel := context.WithTimeout(c.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(tctx, actions...)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case c.tab.Err() != nil:
		return &SessionError{Message: "browser tab is closed", Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &TimeoutError{Step: step, After: timeout, Cause: err}
	default:
		return &ElementNotFoundError{Selector: step, Cause: err}
	}
}

// by picks the query strategy for a selector.
func by(selector string) chromedp.QueryOption {
	if len(selector) > 0 && (selector[0] == '/' || selector[0] == '(') {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// Login opens the portal and signs in. Every failure is an AuthError
// unless ctx was cancelled or the browser died.
func (c *Chrome) Login(ctx context.Context, creds types.Credentials) error {
	sel := c.opts.Selectors
	var before string

	err := c.run(ctx, "login form", c.opts.ElementTimeout,
		chromedp.Navigate(c.opts.PortalURL),
		chromedp.WaitVisible(sel.LoginField, by(sel.LoginField)),
		chromedp.SendKeys(sel.LoginField, creds.Login, by(sel.LoginField)),
		chromedp.SendKeys(sel.PasswordField, creds.Password, by(sel.PasswordField)),
		chromedp.Location(&before),
		chromedp.Click(sel.LoginSubmit, by(sel.LoginSubmit), chromedp.NodeVisible),
	)
	if err != nil {
		return c.authError(ctx, "could not submit the login form", err)
	}

	if err := c.run(ctx, "login redirect", c.opts.ElementTimeout, waitLocationChange(before)); err != nil {
		return c.authError(ctx, "portal stayed on the login page", err)
	}

	c.logger.Info("logged in", zap.String("login", creds.Login))
	return nil
}

func (c *Chrome) authError(ctx context.Context, msg string, err error) error {
	var session *SessionError
	if ctx.Err() != nil || errors.As(err, &session) {
		return err
	}
	return &AuthError{Message: msg, Cause: err}
}

// NavigateToEntityList opens the member list and waits for it to settle.
func (c *Chrome) NavigateToEntityList(ctx context.Context) error {
	sel := c.opts.Selectors
	return c.run(ctx, "member list", c.opts.ElementTimeout+c.opts.SettleDelay,
		chromedp.Click(sel.ListLink, by(sel.ListLink), chromedp.NodeVisible),
		chromedp.Sleep(c.opts.SettleDelay),
		chromedp.WaitVisible(sel.SearchInput, by(sel.SearchInput)),
	)
}

// SearchEntity types name into the member search and opens the single visible result.
func (c *Chrome) SearchEntity(ctx context.Context, name string) (types.Entity, error) {
	sel := c.opts.Selectors

	err := c.run(ctx, "search input", c.opts.ElementTimeout,
		chromedp.WaitVisible(sel.SearchInput, by(sel.SearchInput)),
		chromedp.Clear(sel.SearchInput, by(sel.SearchInput)),
		chromedp.SendKeys(sel.SearchInput, name, by(sel.SearchInput)),
	)
	if err != nil {
		return types.Entity{}, err
	}

	var found match
	seen := 0
	err = c.run(ctx, "search results", c.opts.SearchTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			var html string
			if err := chromedp.OuterHTML("html", &html, chromedp.ByQuery).Do(ctx); err != nil {
				return err
			}
			matches, err := visibleMatches(html)
			if err != nil {
				return err
			}
			seen = len(matches)
			if m, err := singleMatch(name, matches); err == nil {
				found = m
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}))
	if err != nil {
		if IsRecoverable(err) {
			return types.Entity{}, &EntityNotFoundError{Name: name, Matches: seen, Cause: err}
		}
		return types.Entity{}, err
	}

	// Open the row that was counted rather than re-selecting it in the DOM.
	var location string
	if err := c.run(ctx, "search result link", c.opts.ElementTimeout, chromedp.Location(&location)); err != nil {
		return types.Entity{}, err
	}
	target, err := resolveHref(location, found.Href)
	if err != nil {
		return types.Entity{}, &EntityNotFoundError{Name: name, Matches: 1, Cause: err}
	}
	if err := c.run(ctx, "member profile", c.opts.ElementTimeout,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return types.Entity{}, err
	}

	c.logger.Debug("entity opened", zap.String("name", name), zap.String("url", target))
	return types.Entity{Name: name, URL: target}, nil
}

// OpenTransactionForm opens the change-balance form on the current profile.
func (c *Chrome) OpenTransactionForm(ctx context.Context, entity types.Entity) (types.Form, error) {
	sel := c.opts.Selectors
	err := c.run(ctx, "change balance form", c.opts.ElementTimeout,
		chromedp.Click(sel.BalanceButton, by(sel.BalanceButton), chromedp.NodeVisible),
		chromedp.WaitVisible(sel.Sign, by(sel.Sign)),
	)
	if err != nil {
		return types.Form{}, err
	}
	return types.Form{Entity: entity}, nil
}

// SubmitCredit submits one credit with the given cause and dismisses the confirmation.
func (c *Chrome) SubmitCredit(ctx context.Context, form types.Form, reason types.Reason) error {
	sel := c.opts.Selectors
	err := c.run(ctx, "credit form", c.opts.ElementTimeout,
		chromedp.WaitVisible(sel.Cause, by(sel.Cause)),
		selectOption(sel.Sign, signCredit),
		selectOption(sel.Cause, int(reason)),
		chromedp.Click(sel.Save, by(sel.Save), chromedp.NodeVisible),
	)
	if err != nil {
		return err
	}

	if err := c.run(ctx, "confirmation", c.opts.ElementTimeout,
		chromedp.Click(sel.ModalClose, by(sel.ModalClose), chromedp.NodeVisible),
	); err != nil {
		return err
	}

	c.logger.Debug("credit submitted", zap.String("entity", form.Entity.Name), zap.Int("reason", int(reason)))
	return nil
}

// SubmitDebit submits one debit of amount with note as the comment.
func (c *Chrome) SubmitDebit(ctx context.Context, form types.Form, note string, amount decimal.Decimal) error {
	sel := c.opts.Selectors
	err := c.run(ctx, "debit form", c.opts.ElementTimeout,
		selectOption(sel.Sign, signDebit),
		chromedp.WaitVisible(sel.Comment, by(sel.Comment)),
		chromedp.Clear(sel.Comment, by(sel.Comment)),
		chromedp.SendKeys(sel.Comment, note, by(sel.Comment)),
		chromedp.Clear(sel.Amount, by(sel.Amount)),
		chromedp.SendKeys(sel.Amount, amount.String(), by(sel.Amount)),
		chromedp.Click(sel.Save, by(sel.Save), chromedp.NodeVisible),
	)
	if err != nil {
		return err
	}

	c.logger.Debug("debit submitted", zap.String("entity", form.Entity.Name), zap.String("amount", amount.String()))
	return nil
}

// GoBackAndRefresh returns to the previous page and reloads it.
func (c *Chrome) GoBackAndRefresh(ctx context.Context) error {
	return c.run(ctx, "previous page", c.opts.ElementTimeout,
		chromedp.NavigateBack(),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Close shuts the browser down. It is safe to call more than once.
func (c *Chrome) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = chromedp.Cancel(c.tab)
		c.tabCancel()
		c.allocCancel()
		c.logger.Debug("browser closed")
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// waitLocationChange polls until the page address differs from `from`.
func waitLocationChange(from string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			var loc string
			if err := chromedp.Location(&loc).Do(ctx); err != nil {
				return err
			}
			if loc != from {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
}

const selectScript = `(function(sel, want) {
	const el = document.querySelector(sel);
	if (!el) { throw new Error("select " + sel + " not found"); }
	let idx = -1;
	if (typeof want === "number") {
		idx = want;
	} else {
		for (let i = 0; i < el.options.length; i++) {
			if (el.options[i].text.trim() === want) { idx = i; break; }
		}
	}
	if (idx < 0 || idx >= el.options.length) { throw new Error("option " + want + " not found in " + sel); }
	el.selectedIndex = idx;
	el.dispatchEvent(new Event("change", { bubbles: true }));
	return true;
})(%s, %s)`

// selectOption picks a dropdown option by visible text (string) or by index (int).
func selectOption(selector string, want interface{}) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		s, err := json.Marshal(selector)
		if err != nil {
			return err
		}
		w, err := json.Marshal(want)
		if err != nil {
			return err
		}
		var ok bool
		return chromedp.Evaluate(fmt.Sprintf(selectScript, s, w), &ok).Do(ctx)
	})
}
