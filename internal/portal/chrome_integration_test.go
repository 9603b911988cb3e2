//go:build integration

package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jonathan/credit-applier/internal/types"
)

const loginPage = `<html><body>
<form id="loginForm" onsubmit="return false;"><table>
<tr><td><input name="login"></td></tr>
<tr><td><input name="password" type="password"></td></tr>
<tr><td></td></tr>
<tr><td><input id="login-submit" type="button" value="Enter"
  onclick="if (document.getElementsByName('password')[0].value === 'secret') { location.href = '/home'; }"></td></tr>
</table></form>
</body></html>`

const homePage = `<html><body><a id="list-link" href="/users">Members</a></body></html>`

const usersPage = `<html><body>
<input id="search" oninput="filter(this.value)">
<div id="list">
  <div class="user_item" style="display: table-row;"><a href="/user/1">Ivanova A.</a></div>
  <div class="user_item" style="display: table-row;"><a href="/user/2">Ivanov P.</a></div>
  <div class="user_item" style="display: table-row;"><a href="/user/3">Petrov B.</a></div>
</div>
<script>
function filter(q) {
  document.querySelectorAll('.user_item').forEach(function (row) {
    var hit = q !== '' && row.textContent.indexOf(q) >= 0;
    row.setAttribute('style', hit ? 'display:table-row' : 'display:none');
  });
}
</script>
</body></html>`

const profilePage = `<html><body>
<span><span id="balance" onclick="document.getElementById('form').style.display = 'block';">Change balance</span></span>
<div id="form" style="display: none;">
  <select id="fc_field_sign_id"><option>---</option><option>Начисление</option><option>Списание</option></select>
  <select id="fc_field_cause_id">
    <option>0</option><option>1</option><option>2</option><option>3</option>
    <option>activity</option><option>homework</option><option>birthday</option><option>no-skip</option><option>no-behavior</option>
  </select>
  <input id="fc_field_comment_id" value="draft">
  <input id="fc_field_amount_id">
  <input type="button" name="sendsave" value="Save" onclick="save()">
</div>
<div id="modal" style="display: none;"><a class="uss_modal_close" href="#" onclick="this.parentNode.style.display='none'; return false;">x</a></div>
<script>
function save() {
  var body = {
    user: location.pathname,
    sign: document.getElementById('fc_field_sign_id').selectedOptions[0].text,
    cause: document.getElementById('fc_field_cause_id').selectedIndex,
    comment: document.getElementById('fc_field_comment_id').value,
    amount: document.getElementById('fc_field_amount_id').value
  };
  fetch('/submit', { method: 'POST', body: JSON.stringify(body) }).then(function () {
    if (body.sign === 'Начисление') { document.getElementById('modal').style.display = 'block'; }
  });
}
</script>
</body></html>`

type submission struct {
	User    string `json:"user"`
	Sign    string `json:"sign"`
	Cause   int    `json:"cause"`
	Comment string `json:"comment"`
	Amount  string `json:"amount"`
}

type fakePortal struct {
	mu          sync.Mutex
	submissions []submission
}

func (p *fakePortal) list() []submission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]submission(nil), p.submissions...)
}

func (p *fakePortal) handler() http.Handler {
	mux := http.NewServeMux()
	page := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, body)
		}
	}
	mux.HandleFunc("/home", page(homePage))
	mux.HandleFunc("/users", page(usersPage))
	mux.HandleFunc("/user/", page(profilePage))
	mux.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		var s submission
		if err := json.NewDecoder(r.Body).Decode(&s); err == nil {
			p.mu.Lock()
			p.submissions = append(p.submissions, s)
			p.mu.Unlock()
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/", page(loginPage))
	return mux
}

func newTestChrome(t *testing.T, url string) *Chrome {
	t.Helper()
	sel := DefaultSelectors()
	sel.LoginSubmit = "#login-submit"
	sel.ListLink = "#list-link"
	sel.SearchInput = "#search"
	sel.BalanceButton = "#balance"

	c, err := NewChrome(context.Background(), &Options{
		PortalURL:      url + "/",
		Headless:       true,
		ElementTimeout: 5 * time.Second,
		SearchTimeout:  time.Second,
		SettleDelay:    100 * time.Millisecond,
		Selectors:      sel,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestChrome_CreditAndDebit(t *testing.T) {
	portal := &fakePortal{}
	srv := httptest.NewServer(portal.handler())
	defer srv.Close()

	c := newTestChrome(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, c.Login(ctx, types.Credentials{Login: "admin", Password: "secret"}))
	require.NoError(t, c.NavigateToEntityList(ctx))

	entity, err := c.SearchEntity(ctx, "Ivanova A.")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/user/1", entity.URL)

	form, err := c.OpenTransactionForm(ctx, entity)
	require.NoError(t, err)
	require.NoError(t, c.SubmitCredit(ctx, form, types.ReasonActivity))
	require.NoError(t, c.GoBackAndRefresh(ctx))

	entity, err = c.SearchEntity(ctx, "Petrov B.")
	require.NoError(t, err)
	form, err = c.OpenTransactionForm(ctx, entity)
	require.NoError(t, err)
	require.NoError(t, c.SubmitDebit(ctx, form, types.PenaltyNote, decimal.RequireFromString("150.5")))

	require.Eventually(t, func() bool { return len(portal.list()) == 2 }, 5*time.Second, 50*time.Millisecond)
	got := portal.list()
	assert.Equal(t, submission{User: "/user/1", Sign: "Начисление", Cause: 4, Comment: "draft"}, got[0])
	assert.Equal(t, submission{User: "/user/3", Sign: "Списание", Comment: types.PenaltyNote, Amount: "150.5"}, got[1])
}

func TestChrome_SearchMisses(t *testing.T) {
	portal := &fakePortal{}
	srv := httptest.NewServer(portal.handler())
	defer srv.Close()

	c := newTestChrome(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, c.Login(ctx, types.Credentials{Login: "admin", Password: "secret"}))
	require.NoError(t, c.NavigateToEntityList(ctx))

	_, err := c.SearchEntity(ctx, "Nobody")
	require.Error(t, err)
	assert.True(t, IsEntityNotFound(err))
	assert.True(t, IsRecoverable(err))

	_, err = c.SearchEntity(ctx, "Ivanov")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
}

func TestChrome_LoginRejected(t *testing.T) {
	portal := &fakePortal{}
	srv := httptest.NewServer(portal.handler())
	defer srv.Close()

	c := newTestChrome(t, srv.URL)

	err := c.Login(context.Background(), types.Credentials{Login: "admin", Password: "wrong"})
	require.Error(t, err)
	var auth *AuthError
	assert.ErrorAs(t, err, &auth)
	assert.False(t, IsRecoverable(err))
}

func TestChrome_CloseIsIdempotent(t *testing.T) {
	c := newTestChrome(t, "http://127.0.0.1:1")
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.SearchEntity(context.Background(), "A")
	var session *SessionError
	assert.ErrorAs(t, err, &session)
}
