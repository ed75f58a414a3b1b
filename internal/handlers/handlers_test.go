package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/zapdesk/zapdesk/internal/auth"
	"github.com/zapdesk/zapdesk/internal/dispatch"
	"github.com/zapdesk/zapdesk/internal/instance"
	"github.com/zapdesk/zapdesk/internal/message"
	"github.com/zapdesk/zapdesk/internal/webhook"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

// asActor mimics what the JWT middleware leaves in the request context.
func asActor(c echo.Context, accountID string, admin bool) {
	c.Set("user", &jwt.Token{
		Valid:  true,
		Claims: jwt.MapClaims{"sub": accountID, "account_id": accountID, "admin": admin},
	})
}

type fakeDB struct{ pingErr error }

func (f *fakeDB) Ping(context.Context) error { return f.pingErr }

func TestPingReportsDatabaseState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		db     *fakeDB
		wantDB string
	}{
		{"database up", &fakeDB{}, "ok"},
		{"database down", &fakeDB{pingErr: context.DeadlineExceeded}, "unreachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewPingHandler(testLogger(), tt.db)
			e := newTestEcho()
			h.Register(e)

			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["service"] != "zapdesk" || body["database"] != tt.wantDB {
				t.Fatalf("unexpected payload: %v", body)
			}
		})
	}
}

type fakeWebhookService struct {
	lastBody []byte
	result   webhook.Result
}

func (f *fakeWebhookService) Handle(_ context.Context, body []byte) webhook.Result {
	f.lastBody = body
	return f.result
}

func TestWebhookAlwaysAnswers200(t *testing.T) {
	t.Parallel()

	svc := &fakeWebhookService{result: webhook.Failed("instance not found")}
	h := NewWebhookHandler(testLogger(), svc)

	e := newTestEcho()
	h.Register(e)

	body := `{"instance":"sales1","event":"messages.upsert","data":{}}`
	req := httptest.NewRequest(http.MethodPost, "/whatsapp/webhook", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var result webhook.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Status != "error" || result.Message != "instance not found" {
		t.Errorf("result = %+v", result)
	}
	if string(svc.lastBody) != body {
		t.Errorf("service received %q", svc.lastBody)
	}
}

type fakeDispatcher struct {
	lastReq dispatch.SendRequest
	result  dispatch.SendResult
	err     error
}

func (f *fakeDispatcher) Send(_ context.Context, _ auth.Actor, req dispatch.SendRequest) (dispatch.SendResult, error) {
	f.lastReq = req
	return f.result, f.err
}

func (f *fakeDispatcher) React(_ context.Context, _ auth.Actor, id, emoji string) (dispatch.SendResult, error) {
	return f.result, f.err
}

type fakeMessageReader struct {
	messages map[string]message.Message
}

func (f *fakeMessageReader) GetByID(_ context.Context, id string) (message.Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return message.Message{}, message.ErrNotFound
	}
	return m, nil
}

func (f *fakeMessageReader) ListByContact(_ context.Context, _ string, _ int) ([]message.Message, error) {
	return nil, nil
}

func (f *fakeMessageReader) ListByInstance(_ context.Context, _ string, _ int) ([]message.Message, error) {
	return nil, nil
}

func (f *fakeMessageReader) UpdateState(_ context.Context, id string, state message.State, _ string) error {
	m, ok := f.messages[id]
	if !ok {
		return message.ErrNotFound
	}
	m.State = state
	f.messages[id] = m
	return nil
}

func TestMarkReadOnlyAppliesToInbound(t *testing.T) {
	t.Parallel()

	store := &fakeMessageReader{messages: map[string]message.Message{
		"m-in":  {ID: "m-in", Direction: message.Inbound, State: message.StateDelivered},
		"m-out": {ID: "m-out", Direction: message.Outbound, State: message.StateSent},
	}}
	h := NewMessagesHandler(testLogger(), &fakeDispatcher{}, store, nil, nil)
	e := newTestEcho()

	markRead := func(id string) (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(http.MethodPost, "/messages/"+id+"/read", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetPath("/messages/:id/read")
		c.SetParamNames("id")
		c.SetParamValues(id)
		asActor(c, "acct-1", false)
		return rec, h.MarkRead(c)
	}

	rec, err := markRead("m-in")
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if rec.Code != http.StatusOK || store.messages["m-in"].State != message.StateRead {
		t.Errorf("state = %s, status = %d", store.messages["m-in"].State, rec.Code)
	}

	_, err = markRead("m-out")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Fatalf("err = %v, want 409", err)
	}
}

func TestSendRequiresAuthentication(t *testing.T) {
	t.Parallel()

	h := NewMessagesHandler(testLogger(), &fakeDispatcher{}, &fakeMessageReader{}, nil, nil)
	e := newTestEcho()
	h.Register(e)

	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestSendMapsDispatchErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing recipient", dispatch.ErrNoRecipient, http.StatusBadRequest},
		{"empty body", dispatch.ErrEmptyMessage, http.StatusBadRequest},
		{"unknown instance", instance.ErrNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := &fakeDispatcher{err: tt.err}
			h := NewMessagesHandler(testLogger(), d, &fakeMessageReader{}, nil, nil)

			e := newTestEcho()
			body := `{"instance_id":"inst-1","contact_id":"c-1","body":"hi"}`
			req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			asActor(c, "acct-1", false)

			err := h.Send(c)
			if err == nil {
				t.Fatal("expected error")
			}
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("error type %T", err)
			}
			if httpErr.Code != tt.want {
				t.Errorf("code = %d, want %d", httpErr.Code, tt.want)
			}
		})
	}
}

func TestSendDispatchesForActor(t *testing.T) {
	t.Parallel()

	d := &fakeDispatcher{result: dispatch.SendResult{RemoteID: "ABC1"}}
	h := NewMessagesHandler(testLogger(), d, &fakeMessageReader{}, nil, nil)

	e := newTestEcho()
	body := `{"instance_id":"inst-1","contact_id":"c-1","kind":"text","body":"Hello"}`
	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	asActor(c, "acct-1", false)

	if err := h.Send(c); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if d.lastReq.Body != "Hello" || d.lastReq.InstanceID != "inst-1" {
		t.Errorf("dispatched request = %+v", d.lastReq)
	}
}

type fakeInstanceService struct {
	provisioned []instance.CreateRequest
}

func (f *fakeInstanceService) Provision(_ context.Context, req instance.CreateRequest) (instance.Instance, error) {
	f.provisioned = append(f.provisioned, req)
	return instance.Instance{ID: "inst-1", Name: req.Name}, nil
}

func (f *fakeInstanceService) Connect(_ context.Context, _ string) (instance.QRCode, error) {
	return instance.QRCode{}, nil
}
func (f *fakeInstanceService) Restart(_ context.Context, _ string) error     { return nil }
func (f *fakeInstanceService) Logout(_ context.Context, _ string) error      { return nil }
func (f *fakeInstanceService) Deprovision(_ context.Context, _ string) error { return nil }
func (f *fakeInstanceService) ApplySettings(_ context.Context, _ string, _ instance.Settings) (instance.Instance, error) {
	return instance.Instance{}, nil
}
func (f *fakeInstanceService) Get(_ context.Context, _ string) (instance.Instance, error) {
	return instance.Instance{}, instance.ErrNotFound
}
func (f *fakeInstanceService) List(_ context.Context) ([]instance.Instance, error) { return nil, nil }
func (f *fakeInstanceService) SyncAll(_ context.Context) error                     { return nil }

func TestProvisionIsAdminOnly(t *testing.T) {
	t.Parallel()

	svc := &fakeInstanceService{}
	h := NewInstancesHandler(testLogger(), svc)
	e := newTestEcho()

	body := `{"name":"sales1"}`
	req := httptest.NewRequest(http.MethodPost, "/instances", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	asActor(c, "acct-1", false)

	err := h.Create(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("err = %v, want 403", err)
	}
	if len(svc.provisioned) != 0 {
		t.Error("non-admin provisioned an instance")
	}

	req = httptest.NewRequest(http.MethodPost, "/instances", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	asActor(c, "admin-1", true)

	if err := h.Create(c); err != nil {
		t.Fatalf("Create as admin: %v", err)
	}
	if rec.Code != http.StatusCreated || len(svc.provisioned) != 1 {
		t.Errorf("status = %d, provisioned = %d", rec.Code, len(svc.provisioned))
	}
}
