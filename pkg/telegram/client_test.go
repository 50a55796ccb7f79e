package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"studybot/internal/domain"
)

const testToken = "123:abc"

type fakeAPI struct {
	mu    sync.Mutex
	calls map[string][]url.Values
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := "/bot" + testToken + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	method := strings.TrimPrefix(r.URL.Path, prefix)
	_ = r.ParseMultipartForm(1 << 20)
	_ = r.ParseForm()

	f.mu.Lock()
	f.calls[method] = append(f.calls[method], r.Form)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "getMe":
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Study","username":"study_bot"}}`)
	case "sendMessage":
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`)
	default:
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	}
}

func (f *fakeAPI) last(method string) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := f.calls[method]
	if len(calls) == 0 {
		return nil
	}
	return calls[len(calls)-1]
}

func newTestClient(t *testing.T) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{calls: make(map[string][]url.Values)}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	c, err := New(testToken, [][]string{{"A", "B"}, {"C"}}, zaptest.NewLogger(t),
		WithEndpoint(srv.URL+"/bot%s/%s"), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c, api
}

func TestNew_Authenticates(t *testing.T) {
	c, _ := newTestClient(t)
	assert.Equal(t, "study_bot", c.Username())
}

func TestNew_Debug(t *testing.T) {
	srv := httptest.NewServer(&fakeAPI{calls: make(map[string][]url.Values)})
	t.Cleanup(srv.Close)

	c, err := New(testToken, nil, zaptest.NewLogger(t),
		WithEndpoint(srv.URL+"/bot%s/%s"), WithHTTPClient(srv.Client()), WithDebug(true))
	require.NoError(t, err)
	assert.True(t, c.bot.Debug)

	plain, _ := newTestClient(t)
	assert.False(t, plain.bot.Debug)
}

func TestSend(t *testing.T) {
	c, api := newTestClient(t)

	err := c.Send(context.Background(), domain.OutgoingMessage{ChatID: 42, Text: `hi\!`, Markdown: true, Keyboard: true})
	require.NoError(t, err)

	form := api.last("sendMessage")
	require.NotNil(t, form)
	assert.Equal(t, "42", form.Get("chat_id"))
	assert.Equal(t, `hi\!`, form.Get("text"))
	assert.Equal(t, tgbotapi.ModeMarkdownV2, form.Get("parse_mode"))

	var kb tgbotapi.ReplyKeyboardMarkup
	require.NoError(t, json.Unmarshal([]byte(form.Get("reply_markup")), &kb))
	require.Len(t, kb.Keyboard, 2)
	assert.Equal(t, "C", kb.Keyboard[1][0].Text)

	require.NoError(t, c.Send(context.Background(), domain.OutgoingMessage{ChatID: 42, Text: "plain"}))
	form = api.last("sendMessage")
	assert.Empty(t, form.Get("parse_mode"))
	assert.Empty(t, form.Get("reply_markup"))
}

func TestSend_CancelledContext(t *testing.T) {
	c, api := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.Send(ctx, domain.OutgoingMessage{ChatID: 1, Text: "x"}), context.Canceled)
	assert.Nil(t, api.last("sendMessage"))
}

func TestSetCommands(t *testing.T) {
	c, api := newTestClient(t)

	require.NoError(t, c.SetCommands([]domain.BotCommand{{Command: "search", Description: "Search"}}))
	form := api.last("setMyCommands")
	require.NotNil(t, form)
	assert.Contains(t, form.Get("commands"), `"command":"search"`)
}

func TestSetWebhook(t *testing.T) {
	c, api := newTestClient(t)

	require.NoError(t, c.SetWebhook("https://example.org/webhook"))
	assert.Equal(t, "https://example.org/webhook", api.last("setWebhook").Get("url"))

	require.NoError(t, c.DeleteWebhook())
	assert.NotNil(t, api.last("deleteWebhook"))
}

func TestToIncoming(t *testing.T) {
	_, ok := ToIncoming(tgbotapi.Update{})
	assert.False(t, ok)

	msg, ok := ToIncoming(tgbotapi.Update{Message: &tgbotapi.Message{
		Date: 1700000000,
		Chat: &tgbotapi.Chat{ID: -5, Type: "supergroup", Title: "Study group"},
		From: &tgbotapi.User{ID: 7, FirstName: "Rui"},
		Text: "/help",
	}})
	require.True(t, ok)
	assert.Equal(t, domain.ChatGroup, msg.ChatType)
	assert.Equal(t, int64(7), msg.UserID)
	assert.Equal(t, "Study group", msg.ChatTitle)

	msg, ok = ToIncoming(tgbotapi.Update{ChannelPost: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: -100, Type: "channel", UserName: "physics_ch"},
		Text: "Entropy - Disorder",
	}})
	require.True(t, ok)
	assert.Equal(t, domain.ChatChannel, msg.ChatType)
	assert.Equal(t, "physics_ch", msg.ChatTitle)
	assert.Equal(t, int64(-100), msg.UserID)

	_, ok = ToIncoming(tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1, Type: "private"}, Text: "  "}})
	assert.False(t, ok)
}

func TestPublicURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"tunnels":[{"proto":"http","public_url":"http://a"},{"proto":"https","public_url":"https://b.ngrok.io"}]}`)
	}))
	defer srv.Close()

	u, err := PublicURL(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://b.ngrok.io", u)

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"tunnels":[]}`)
	}))
	defer empty.Close()
	_, err = PublicURL(context.Background(), empty.URL)
	assert.Error(t, err)
}
