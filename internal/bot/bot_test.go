package bot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/price-estimator-bot/internal/estimator"
	"github.com/raine/price-estimator-bot/internal/storage"
	"github.com/raine/price-estimator-bot/internal/vision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const adminID = int64(1)

type botApiMock struct {
	mock.Mock
}

func (m *botApiMock) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func (m *botApiMock) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	args := m.Called(c)
	return args.Get(0).(*tgbotapi.APIResponse), args.Error(1)
}

func (m *botApiMock) GetFileDirectURL(fileID string) (string, error) {
	args := m.Called(fileID)
	return args.Get(0).(string), args.Error(1)
}

type estimatorMock struct {
	mock.Mock
	userID int64 // user tagged on the last estimate's context
}

func (m *estimatorMock) EstimateDetailed(ctx context.Context, img vision.Image, title string) (estimator.Result, estimator.Outcome) {
	m.userID = estimator.UserIDFrom(ctx)
	args := m.Called(img, title)
	return args.Get(0).(estimator.Result), args.Get(1).(estimator.Outcome)
}

// mockStore is an in-memory Store
type mockStore struct {
	mu        sync.Mutex
	allowed   map[int64]storage.AllowedUser
	estimates []storage.EstimateRecord
	err       error
}

func newMockStore() *mockStore {
	return &mockStore{allowed: make(map[int64]storage.AllowedUser)}
}

func (m *mockStore) IsUserAllowed(telegramID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.allowed[telegramID]
	return ok, nil
}

func (m *mockStore) AddAllowedUser(telegramID, addedBy int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowed[telegramID] = storage.AllowedUser{
		TelegramID: telegramID,
		AddedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		AddedBy:    addedBy,
	}
	return nil
}

func (m *mockStore) RemoveAllowedUser(telegramID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.allowed, telegramID)
	return nil
}

func (m *mockStore) GetAllowedUsers() ([]storage.AllowedUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []storage.AllowedUser
	for _, u := range m.allowed {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].TelegramID < users[j].TelegramID })
	return users, nil
}

func (m *mockStore) RecentEstimatesByUser(userID int64, limit int) ([]storage.EstimateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	records := []storage.EstimateRecord{}
	for _, r := range m.estimates {
		if r.UserID == userID && len(records) < limit {
			records = append(records, r)
		}
	}
	return records, nil
}

func setup(t *testing.T) (*botApiMock, *estimatorMock, *mockStore, *Bot) {
	tg := new(botApiMock)
	est := new(estimatorMock)
	store := newMockStore()
	bot := NewBot(tg, store, est, adminID)
	t.Cleanup(bot.Shutdown)
	return tg, est, store, bot
}

func makeUpdateWithMessageText(userId int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{
				ID: userId,
			},
			Text: text,
		},
	}
}

func makeUpdateWithPhoto(userId int64, caption string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			From:    &tgbotapi.User{ID: userId},
			Caption: caption,
			Photo: []tgbotapi.PhotoSize{
				{FileID: "small", Width: 90, Height: 67},
				{FileID: "large", Width: 1280, Height: 960},
				{FileID: "medium", Width: 320, Height: 240},
			},
		},
	}
}

func makeMessage(userId int64, text string) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(userId, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	return msg
}

func makeMessageWithoutPreview(userId int64, text string) tgbotapi.MessageConfig {
	msg := makeMessage(userId, text)
	msg.DisableWebPagePreview = true
	return msg
}

func newPhotoServer(t *testing.T) *httptest.Server {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/large.jpg" {
			t.Errorf("invalid request to test server: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg"))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func sampleResult() estimator.Result {
	avg, median := "129.99", "129.99"
	return estimator.Result{
		Labels:      []string{"Headphones"},
		AvgPrice:    &avg,
		MedianPrice: &median,
		PriceRange:  &estimator.PriceRange{Min: 129.99, Max: 129.99},
		Listings: []estimator.PriceListing{
			{Title: "Sony WH-1000XM4", Price: 129.99, URL: "https://www.amazon.com/dp/1", Confidence: 0.7},
		},
		Confidence:  estimator.ConfidenceMedium,
		SearchQuery: `"Sony Headphones" price | Sony Headphones`,
	}
}

func TestHandleUpdate_NotAllowedUserIsDropped(t *testing.T) {
	tg, _, _, bot := setup(t)

	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(99, "/start"))

	tg.AssertNotCalled(t, "Send", mock.Anything)
	assert.Empty(t, bot.state.sessions)
}

func TestHandleUpdate_WhitelistErrorFailsClosed(t *testing.T) {
	tg, _, store, bot := setup(t)
	store.allowed[5] = storage.AllowedUser{TelegramID: 5}
	store.err = errors.New("db down")

	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(5, "/start"))

	tg.AssertNotCalled(t, "Send", mock.Anything)
}

func TestHandleUpdate_IgnoresUpdatesWithoutMessage(t *testing.T) {
	tg, _, _, bot := setup(t)
	bot.handleUpdateSync(context.Background(), tgbotapi.Update{})
	tg.AssertNotCalled(t, "Send", mock.Anything)
}

func TestStartAndHelpCommands(t *testing.T) {
	tg, _, store, bot := setup(t)
	store.allowed[5] = storage.AllowedUser{TelegramID: 5}

	tg.On("Send", makeMessage(5, formatReplyText(MsgStartPrompt))).Return(tgbotapi.Message{}, nil).Once()
	tg.On("Send", makeMessage(5, formatReplyText(MsgHelp))).Return(tgbotapi.Message{}, nil).Once()
	tg.On("Send", makeMessage(5, MsgSendPhoto)).Return(tgbotapi.Message{}, nil).Once()

	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(5, "/start"))
	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(5, "/help@price_bot"))
	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(5, "what is this worth?"))

	tg.AssertExpectations(t)
}

func TestPhotoMessageRepliesWithEstimate(t *testing.T) {
	tg, est, _, bot := setup(t)
	ts := newPhotoServer(t)

	tg.On("Request", mock.Anything).Return(&tgbotapi.APIResponse{Ok: true}, nil).Maybe()
	tg.On("GetFileDirectURL", "large").Return(ts.URL+"/large.jpg", nil).Once()
	est.On("EstimateDetailed", vision.Image{Content: []byte("jpeg"), MIMEType: "image/jpeg"}, "Sony Headphones").
		Return(sampleResult(), estimator.OutcomeOK).Once()
	tg.On("Send", makeMessageWithoutPreview(adminID, formatEstimate(sampleResult()))).Return(tgbotapi.Message{}, nil).Once()

	bot.handleUpdateSync(context.Background(), makeUpdateWithPhoto(adminID, " Sony Headphones "))

	tg.AssertExpectations(t)
	est.AssertExpectations(t)
	assert.Equal(t, adminID, est.userID)
}

func TestPhotoMessageWithoutEstimate(t *testing.T) {
	tg, est, _, bot := setup(t)
	ts := newPhotoServer(t)

	tg.On("Request", mock.Anything).Return(&tgbotapi.APIResponse{Ok: true}, nil).Maybe()
	tg.On("GetFileDirectURL", "large").Return(ts.URL+"/large.jpg", nil).Once()
	est.On("EstimateDetailed", mock.Anything, "").
		Return(estimator.EmptyResult(nil, ""), estimator.OutcomeNoPrices).Once()
	tg.On("Send", makeMessageWithoutPreview(adminID, MsgNoPricesFound)).Return(tgbotapi.Message{}, nil).Once()

	bot.handleUpdateSync(context.Background(), makeUpdateWithPhoto(adminID, ""))

	tg.AssertExpectations(t)
	est.AssertExpectations(t)
}

func TestPhotoMessageDownloadFailure(t *testing.T) {
	tg, est, _, bot := setup(t)

	tg.On("Request", mock.Anything).Return(&tgbotapi.APIResponse{Ok: true}, nil).Maybe()
	tg.On("GetFileDirectURL", "large").Return("", errors.New("file not found")).Once()
	tg.On("Send", makeMessage(adminID, MsgPhotoDownloadFail)).Return(tgbotapi.Message{}, nil).Once()

	bot.handleUpdateSync(context.Background(), makeUpdateWithPhoto(adminID, "Mug"))

	tg.AssertExpectations(t)
	est.AssertNotCalled(t, "EstimateDetailed", mock.Anything, mock.Anything)
}

func TestHistoryCommand(t *testing.T) {
	tg, _, store, bot := setup(t)
	avg := "11.50"
	store.estimates = []storage.EstimateRecord{
		{Title: "Sony Headphones", AvgPrice: &avg, Confidence: "medium", UserID: adminID, CreatedAt: time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)},
		{Title: "Someone else's camera", AvgPrice: &avg, Confidence: "high", UserID: 5, CreatedAt: time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)},
		{Title: "", Confidence: "low", UserID: adminID, CreatedAt: time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)},
	}

	want := "*Recent estimates*\n" +
		"• 2026-03-04 10:30 Sony Headphones: $11.50 (medium)\n" +
		"• 2026-03-03 09:00 untitled: no estimate (low)"
	tg.On("Send", makeMessageWithoutPreview(adminID, want)).Return(tgbotapi.Message{}, nil).Once()

	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(adminID, "/history"))
	tg.AssertExpectations(t)
}

func TestHistoryCommandShowsOnlyOwnEstimates(t *testing.T) {
	tg, _, store, bot := setup(t)
	store.allowed[5] = storage.AllowedUser{TelegramID: 5}
	avg := "99.00"
	store.estimates = []storage.EstimateRecord{
		{Title: "Admin's watch", AvgPrice: &avg, Confidence: "high", UserID: adminID, CreatedAt: time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)},
	}

	tg.On("Send", makeMessageWithoutPreview(5, MsgHistoryEmpty)).Return(tgbotapi.Message{}, nil).Once()

	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(5, "/history"))
	tg.AssertExpectations(t)
}

func TestHistoryCommandEmpty(t *testing.T) {
	tg, _, _, bot := setup(t)
	tg.On("Send", makeMessageWithoutPreview(adminID, MsgHistoryEmpty)).Return(tgbotapi.Message{}, nil).Once()

	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(adminID, "/history"))
	tg.AssertExpectations(t)
}

func TestAdminUsersCommands(t *testing.T) {
	tg, _, store, bot := setup(t)

	tg.On("Send", makeMessage(adminID, formatReplyText(MsgAdminUserAdded, int64(42)))).Return(tgbotapi.Message{}, nil).Once()
	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(adminID, "/admin users add 42"))
	allowed, _ := store.IsUserAllowed(42)
	assert.True(t, allowed)
	assert.Equal(t, adminID, store.allowed[42].AddedBy)

	tg.On("Send", makeMessageWithoutPreview(adminID, MsgAdminAllowedUsers+"• `42` (added 2026-01-02)")).Return(tgbotapi.Message{}, nil).Once()
	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(adminID, "/admin users list"))

	tg.On("Send", makeMessage(adminID, formatReplyText(MsgAdminUserRemoved, int64(42)))).Return(tgbotapi.Message{}, nil).Once()
	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(adminID, "/admin users remove 42"))
	allowed, _ = store.IsUserAllowed(42)
	assert.False(t, allowed)

	tg.On("Send", makeMessage(adminID, MsgAdminNoUsers)).Return(tgbotapi.Message{}, nil).Once()
	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(adminID, "/admin users list"))

	tg.AssertExpectations(t)
}

func TestAdminCommandUsage(t *testing.T) {
	tg, _, _, bot := setup(t)

	tg.On("Send", makeMessage(adminID, MsgAdminUsage)).Return(tgbotapi.Message{}, nil).Twice()
	tg.On("Send", makeMessage(adminID, MsgAdminUserAddUsage)).Return(tgbotapi.Message{}, nil).Once()
	tg.On("Send", makeMessage(adminID, MsgAdminUserInvalidID)).Return(tgbotapi.Message{}, nil).Once()

	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(adminID, "/admin"))
	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(adminID, "/admin users frobnicate"))
	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(adminID, "/admin users add"))
	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(adminID, "/admin users add abc"))

	tg.AssertExpectations(t)
}

func TestAdminCommandIgnoredForOtherUsers(t *testing.T) {
	tg, _, store, bot := setup(t)
	store.allowed[5] = storage.AllowedUser{TelegramID: 5}

	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(5, "/admin users add 6"))

	tg.AssertNotCalled(t, "Send", mock.Anything)
	allowed, _ := store.IsUserAllowed(6)
	assert.False(t, allowed)
}

func TestLargestPhoto(t *testing.T) {
	photo := largestPhoto(makeUpdateWithPhoto(1, "").Message.Photo)
	assert.Equal(t, "large", photo.FileID)
}

func TestRegisterCommands(t *testing.T) {
	tg := new(botApiMock)
	tg.On("Request", tgbotapi.NewSetMyCommands(menuCommands...)).Return(&tgbotapi.APIResponse{Ok: true}, nil).Once()

	RegisterCommands(tg)
	tg.AssertExpectations(t)
}

func TestShutdownStopsSessions(t *testing.T) {
	tg, _, store, bot := setup(t)
	store.allowed[5] = storage.AllowedUser{TelegramID: 5}
	tg.On("Send", mock.Anything).Return(tgbotapi.Message{}, nil)

	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(5, "/start"))
	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(adminID, "/start"))
	assert.Len(t, bot.state.sessions, 2)

	bot.Shutdown()
	for _, s := range bot.state.sessions {
		assert.Error(t, s.ctx.Err())
	}
}
