package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"protocolo-municipal/internal/app"
	"protocolo-municipal/internal/audit"
	"protocolo-municipal/internal/auth"
	"protocolo-municipal/internal/config"
	"protocolo-municipal/internal/identity"
	"protocolo-municipal/internal/notify"
	"protocolo-municipal/internal/rbac"
	"protocolo-municipal/internal/records"
	"protocolo-municipal/internal/workflow"

	"github.com/gin-gonic/gin"
)

type testEnv struct {
	app    *app.App
	router *gin.Engine
	tokens map[int64]string
}

var testUsers = []identity.User{
	{ID: 1, Name: "Servidora", Email: "servidora@pm.gov.br", Role: rbac.RoleServidor, Active: true},
	{ID: 2, Name: "Gestor", Email: "gestor@pm.gov.br", Role: rbac.RoleGestor, Active: true},
	{ID: 3, Name: "Auditora", Email: "auditora@pm.gov.br", Role: rbac.RoleAuditor, Active: true},
	{ID: 4, Name: "Inativo", Email: "inativo@pm.gov.br", Role: rbac.RoleServidor, Active: false},
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		App:    config.AppConfig{Env: "local", Port: 8080},
		Auth:   config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTL: 15 * time.Minute, RefreshTokenTTL: time.Hour},
		Audit:  config.AuditConfig{Retention: 24 * time.Hour},
		Notify: config.NotifyConfig{Channels: []string{"inapp"}, Timeout: time.Second},
	}
	a, err := app.New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	dir := a.Users.(*identity.MemoryDirectory)
	env := &testEnv{app: a, tokens: map[int64]string{}}
	for _, u := range testUsers {
		dir.Put(u)
		pair, err := a.Auth.IssuePair(time.Now(), auth.Subject{UserID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role})
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		env.tokens[u.ID] = pair.AccessToken
	}

	h := Handlers{
		Auth:     a.Auth,
		Users:    a.Users,
		Records:  a.Records,
		Audit:    a.Audit,
		SLA:      a.SLA,
		Workflow: a.Workflow,
		Inbox:    a.Inbox,
		Prefs:    a.Prefs,
		Notifier: a.Notifier,
		Calendar: a.Calendar,
	}
	r := gin.New()
	r.POST("/v1/auth/refresh", h.Refresh)
	v1 := r.Group("/v1", auth.RequireAccessToken(a.Auth), rbac.RequireUser(), RequestInfo())
	v1.GET("/me", h.Me)
	v1.POST("/protocolos", h.CreateRecord)
	v1.GET("/protocolos/:id", h.GetRecord)
	v1.PUT("/protocolos/:id", h.UpdateRecord)
	v1.DELETE("/protocolos/:id", rbac.RequireAnyRole(rbac.RoleGestor), h.DeleteRecord)
	v1.POST("/protocolos/:id/movimentar", h.MoveRecord)
	v1.GET("/protocolos/:id/prazo", h.GetDeadline)
	v1.GET("/protocolos/:id/auditoria", rbac.RequireAnyRole(rbac.RoleGestor, rbac.RoleAuditor), h.RecordAudit)
	v1.POST("/protocolos/:id/aprovacao", h.OpenWorkflow)
	v1.GET("/workflows/pendentes", h.PendingApprovals)
	v1.POST("/workflows/:wid/aprovar", h.Approve)
	v1.POST("/workflows/:wid/rejeitar", h.Reject)
	v1.POST("/workflows/:wid/cancelar", rbac.RequireAnyRole(rbac.RoleGestor), h.CancelWorkflow)
	v1.GET("/notificacoes", h.ListNotifications)
	v1.GET("/notificacoes/nao-lidas", h.UnreadNotifications)
	v1.POST("/notificacoes/lidas", h.MarkAllNotificationsRead)
	v1.POST("/notificacoes/:nid/lida", h.MarkNotificationRead)
	v1.GET("/notificacoes/preferencias", h.GetNotificationPreferences)
	v1.PUT("/notificacoes/preferencias", h.UpdateNotificationPreferences)
	v1.GET("/admin/auditoria/relatorio", rbac.RequireAnyRole(rbac.RoleGestor, rbac.RoleAuditor), h.AuditReport)
	v1.GET("/admin/prazos/relatorio", rbac.RequireAnyRole(rbac.RoleGestor, rbac.RoleAuditor), h.SLAReport)
	v1.POST("/admin/prazos/verificar", rbac.RequireAnyRole(rbac.RoleGestor), h.SLASweep)
	env.router = r
	return env
}

func (e *testEnv) do(t *testing.T, userID int64, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handlers-test")
	if tok, ok := e.tokens[userID]; ok {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func (e *testEnv) createRecord(t *testing.T, body map[string]any) records.Record {
	t.Helper()
	w := e.do(t, 1, http.MethodPost, "/v1/protocolos", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return decode[records.Record](t, w)
}

func TestCreateRecord_DefaultsAndDerivedFields(t *testing.T) {
	e := newTestEnv(t)

	rec := e.createRecord(t, map[string]any{"numero": " 0001/2025 ", "assunto": "Pedido", "prazo_dias": 10})
	if rec.ID == 0 || rec.Numero != "0001/2025" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.DataAbertura == "" || rec.DataLimite == "" {
		t.Fatalf("expected opening date and deadline to be filled: %+v", rec)
	}
	if rec.Status != records.StatusEmTramitacao || rec.CreatedBy != 1 {
		t.Fatalf("expected default status and creator: %+v", rec)
	}
}

func TestCreateRecord_Validation(t *testing.T) {
	e := newTestEnv(t)

	cases := []map[string]any{
		{"assunto": "sem numero"},
		{"numero": "1", "status": "Arquivado"},
		{"numero": "1", "prioridade": "altissima"},
		{"numero": "1", "prazo_dias": -1},
		{"numero": "1", "data_abertura": "31/31/2025"},
	}
	for i, body := range cases {
		if w := e.do(t, 1, http.MethodPost, "/v1/protocolos", body); w.Code != http.StatusBadRequest {
			t.Fatalf("case %d: expected 400, got %d: %s", i, w.Code, w.Body.String())
		}
	}
}

func TestCreateRecord_StoresOpeningDateAsISO(t *testing.T) {
	e := newTestEnv(t)

	rec := e.createRecord(t, map[string]any{"numero": "0010/2025", "data_abertura": "15/03/2025", "prazo_dias": 10})
	if rec.DataAbertura != "2025-03-15" {
		t.Fatalf("expected ISO opening date, got %q", rec.DataAbertura)
	}
	e.createRecord(t, map[string]any{"numero": "0011/2025", "data_abertura": "02/04/2025"})

	w := e.do(t, 3, http.MethodGet, "/v1/admin/prazos/relatorio?from=2025-03-01&to=2025-03-31", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sla report: expected 200, got %d", w.Code)
	}
	if rep := decode[map[string]any](t, w); rep["total"] != float64(1) {
		t.Fatalf("expected only the March record in range, got %+v", rep)
	}
}

func TestGetRecord_AuditsViewAndMapsErrors(t *testing.T) {
	e := newTestEnv(t)
	rec := e.createRecord(t, map[string]any{"numero": "0002/2025"})

	if w := e.do(t, 1, http.MethodGet, fmt.Sprintf("/v1/protocolos/%d", rec.ID), nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := e.do(t, 1, http.MethodGet, "/v1/protocolos/999", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := e.do(t, 1, http.MethodGet, "/v1/protocolos/abc", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w := e.do(t, 99, http.MethodGet, fmt.Sprintf("/v1/protocolos/%d", rec.ID), nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	entries, err := e.app.Audit.RecordLog(context.Background(), rec.ID, 10)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	var viewed *audit.Entry
	for i := range entries {
		if entries[i].Action == audit.ActionViewed {
			viewed = &entries[i]
		}
	}
	if viewed == nil {
		t.Fatalf("expected a view entry, got %+v", entries)
	}
	if viewed.UserID != 1 || viewed.UserAgent != "handlers-test" || viewed.Severity != audit.SeverityDebug {
		t.Fatalf("view entry not attributed: %+v", viewed)
	}
}

func TestRecordAudit_RequiresReportRole(t *testing.T) {
	e := newTestEnv(t)
	rec := e.createRecord(t, map[string]any{"numero": "0003/2025"})
	path := fmt.Sprintf("/v1/protocolos/%d/auditoria", rec.ID)

	if w := e.do(t, 1, http.MethodGet, path, nil); w.Code != http.StatusForbidden {
		t.Fatalf("servidor: expected 403, got %d", w.Code)
	}
	w := e.do(t, 3, http.MethodGet, path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("auditor: expected 200, got %d", w.Code)
	}
	body := decode[struct {
		Entries []audit.Entry `json:"entries"`
	}](t, w)
	if len(body.Entries) == 0 || body.Entries[len(body.Entries)-1].Action != audit.ActionCreated {
		t.Fatalf("expected trail ending with creation, got %+v", body.Entries)
	}
}

func TestMoveRecord(t *testing.T) {
	e := newTestEnv(t)
	rec := e.createRecord(t, map[string]any{"numero": "0004/2025", "destino": "Protocolo Geral"})
	path := fmt.Sprintf("/v1/protocolos/%d/movimentar", rec.ID)

	if w := e.do(t, 1, http.MethodPost, path, map[string]any{"destino": "  "}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without destino, got %d", w.Code)
	}

	w := e.do(t, 1, http.MethodPost, path, map[string]any{
		"destino":           "Secretaria de Obras",
		"responsavel_email": "gestor@pm.gov.br",
		"observacao":        "para parecer",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("move: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	moved := decode[records.Record](t, w)
	if moved.Origem != "Protocolo Geral" || moved.Destino != "Secretaria de Obras" {
		t.Fatalf("unexpected move result: %+v", moved)
	}

	entries, _ := e.app.Audit.RecordLog(context.Background(), rec.ID, 20)
	found := false
	for _, en := range entries {
		if en.Action == audit.ActionMoved && en.Metadata["para"] == "Secretaria de Obras" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected move audit entry, got %+v", entries)
	}

	inbox, _ := e.app.Inbox.List(context.Background(), 2, true, 10)
	if len(inbox) != 1 {
		t.Fatalf("expected responsible to be notified, got %+v", inbox)
	}
}

func TestGetDeadline(t *testing.T) {
	e := newTestEnv(t)
	rec := e.createRecord(t, map[string]any{"numero": "0005/2025", "data_abertura": "2020-01-02", "prazo_dias": 5})

	w := e.do(t, 1, http.MethodGet, fmt.Sprintf("/v1/protocolos/%d/prazo", rec.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decode[map[string]any](t, w)
	if body["data_limite"] != "2020-01-09" || body["nivel_alerta"] != "vermelho" {
		t.Fatalf("unexpected deadline: %+v", body)
	}
}

func TestWorkflowEndpoints(t *testing.T) {
	e := newTestEnv(t)
	rec := e.createRecord(t, map[string]any{"numero": "0006/2025"})
	open := fmt.Sprintf("/v1/protocolos/%d/aprovacao", rec.ID)

	if w := e.do(t, 1, http.MethodPost, open, map[string]any{"aprovadores": []int64{}}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without approvers, got %d", w.Code)
	}
	if w := e.do(t, 1, http.MethodPost, "/v1/protocolos/999/aprovacao", map[string]any{"aprovadores": []int64{2}}); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown record, got %d", w.Code)
	}

	w := e.do(t, 1, http.MethodPost, open, map[string]any{"tipo_fluxo": "sequencial", "aprovadores": []int64{2, 3}})
	if w.Code != http.StatusCreated {
		t.Fatalf("open: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	wf := decode[workflow.Workflow](t, w)
	if w := e.do(t, 1, http.MethodPost, open, map[string]any{"aprovadores": []int64{2}}); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for second open workflow, got %d", w.Code)
	}

	pending := decode[struct {
		Items []workflow.PendingApproval `json:"items"`
	}](t, e.do(t, 2, http.MethodGet, "/v1/workflows/pendentes", nil))
	if len(pending.Items) != 1 || pending.Items[0].Numero != "0006/2025" {
		t.Fatalf("unexpected pending list: %+v", pending.Items)
	}

	approve := fmt.Sprintf("/v1/workflows/%d/aprovar", wf.ID)
	if w := e.do(t, 1, http.MethodPost, approve, nil); w.Code != http.StatusNotFound {
		t.Fatalf("non-approver: expected 404, got %d", w.Code)
	}

	// Approver 3 answers before 2 holds the turn.
	reject := fmt.Sprintf("/v1/workflows/%d/rejeitar", wf.ID)
	if w := e.do(t, 3, http.MethodPost, reject, map[string]any{"motivo": " "}); w.Code != http.StatusBadRequest {
		t.Fatalf("reject without motivo: expected 400, got %d", w.Code)
	}
	w = e.do(t, 3, http.MethodPost, reject, map[string]any{"motivo": "documentação incompleta"})
	if w.Code != http.StatusOK {
		t.Fatalf("reject: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decode[workflow.Workflow](t, w); got.Status != workflow.StatusRejeitado {
		t.Fatalf("expected rejected workflow, got %+v", got)
	}
	if w := e.do(t, 2, http.MethodPost, approve, map[string]any{"observacoes": "ok"}); w.Code != http.StatusConflict {
		t.Fatalf("approve after rejection: expected 409, got %d", w.Code)
	}

	saved, _ := e.app.Records.Get(context.Background(), rec.ID)
	if saved.Status != records.StatusRejeitado || saved.MotivoRejeicao != "documentação incompleta" {
		t.Fatalf("record not updated: %+v", saved)
	}

	cancel := fmt.Sprintf("/v1/workflows/%d/cancelar", wf.ID)
	if w := e.do(t, 1, http.MethodPost, cancel, nil); w.Code != http.StatusForbidden {
		t.Fatalf("servidor cancel: expected 403, got %d", w.Code)
	}
	if w := e.do(t, 2, http.MethodPost, cancel, nil); w.Code != http.StatusConflict {
		t.Fatalf("cancel finalized: expected 409, got %d", w.Code)
	}
}

func TestNotifications_ListAndMarkRead(t *testing.T) {
	e := newTestEnv(t)
	rec := e.createRecord(t, map[string]any{"numero": "0007/2025"})
	if w := e.do(t, 1, http.MethodPost, fmt.Sprintf("/v1/protocolos/%d/aprovacao", rec.ID), map[string]any{"aprovadores": []int64{2}}); w.Code != http.StatusCreated {
		t.Fatalf("open: %d", w.Code)
	}

	list := decode[struct {
		Items []struct {
			ID   int64 `json:"id"`
			Read bool  `json:"read"`
		} `json:"items"`
	}](t, e.do(t, 2, http.MethodGet, "/v1/notificacoes?unread=true", nil))
	if len(list.Items) != 1 {
		t.Fatalf("expected one unread notification, got %+v", list.Items)
	}

	nid := list.Items[0].ID
	if w := e.do(t, 1, http.MethodPost, fmt.Sprintf("/v1/notificacoes/%d/lida", nid), nil); w.Code != http.StatusNotFound {
		t.Fatalf("other user: expected 404, got %d", w.Code)
	}
	if w := e.do(t, 2, http.MethodPost, fmt.Sprintf("/v1/notificacoes/%d/lida", nid), nil); w.Code != http.StatusNoContent {
		t.Fatalf("mark read: expected 204, got %d", w.Code)
	}
	items, _ := e.app.Inbox.List(context.Background(), 2, true, 10)
	if len(items) != 0 {
		t.Fatalf("expected no unread notifications, got %+v", items)
	}
}

func TestNotifications_UnreadCountMarkAllAndPreferences(t *testing.T) {
	e := newTestEnv(t)
	e.createRecord(t, map[string]any{"numero": "0012/2025", "responsavel_email": "gestor@pm.gov.br"})
	e.createRecord(t, map[string]any{"numero": "0013/2025", "responsavel_email": "gestor@pm.gov.br"})

	unread := func() float64 {
		t.Helper()
		w := e.do(t, 2, http.MethodGet, "/v1/notificacoes/nao-lidas", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("unread count: expected 200, got %d", w.Code)
		}
		return decode[map[string]any](t, w)["unread_count"].(float64)
	}
	if n := unread(); n != 2 {
		t.Fatalf("expected 2 creation notifications, got %v", n)
	}

	w := e.do(t, 2, http.MethodPost, "/v1/notificacoes/lidas", nil)
	if w.Code != http.StatusOK || decode[map[string]any](t, w)["marked"] != float64(2) {
		t.Fatalf("mark all: got %d %s", w.Code, w.Body.String())
	}
	if n := unread(); n != 0 {
		t.Fatalf("expected 0 unread after mark all, got %v", n)
	}

	prefs := decode[notify.Preferences](t, e.do(t, 2, http.MethodGet, "/v1/notificacoes/preferencias", nil))
	if !prefs.InApp || !prefs.Email || prefs.Webhook || prefs.UserID != 2 {
		t.Fatalf("unexpected default preferences: %+v", prefs)
	}
	w = e.do(t, 2, http.MethodPut, "/v1/notificacoes/preferencias", map[string]any{"inapp": false})
	if w.Code != http.StatusOK {
		t.Fatalf("update prefs: expected 200, got %d", w.Code)
	}
	if got := decode[notify.Preferences](t, w); got.InApp || !got.Email {
		t.Fatalf("only inapp should change: %+v", got)
	}

	e.createRecord(t, map[string]any{"numero": "0014/2025", "responsavel_email": "gestor@pm.gov.br"})
	if n := unread(); n != 0 {
		t.Fatalf("in-app opt-out ignored, got %v unread", n)
	}
}

func TestReports_RoleGuardsAndQueries(t *testing.T) {
	e := newTestEnv(t)
	e.createRecord(t, map[string]any{"numero": "0008/2025", "data_abertura": "2020-01-02", "prazo_dias": 5})

	if w := e.do(t, 1, http.MethodGet, "/v1/admin/prazos/relatorio", nil); w.Code != http.StatusForbidden {
		t.Fatalf("servidor: expected 403, got %d", w.Code)
	}
	w := e.do(t, 3, http.MethodGet, "/v1/admin/prazos/relatorio", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sla report: expected 200, got %d", w.Code)
	}
	if rep := decode[map[string]any](t, w); rep["overdue"] != float64(1) {
		t.Fatalf("expected one overdue record, got %+v", rep)
	}
	if w := e.do(t, 3, http.MethodGet, "/v1/admin/prazos/relatorio?from=ontem", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad date: expected 400, got %d", w.Code)
	}

	if w := e.do(t, 3, http.MethodPost, "/v1/admin/prazos/verificar", nil); w.Code != http.StatusForbidden {
		t.Fatalf("auditor sweep: expected 403, got %d", w.Code)
	}
	if w := e.do(t, 2, http.MethodPost, "/v1/admin/prazos/verificar", nil); w.Code != http.StatusOK {
		t.Fatalf("sweep: expected 200, got %d", w.Code)
	}

	w = e.do(t, 2, http.MethodGet, "/v1/admin/auditoria/relatorio?action="+audit.ActionCreated, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("audit report: expected 200, got %d", w.Code)
	}
	rows := decode[struct {
		Rows []audit.ReportRow `json:"rows"`
	}](t, w)
	if len(rows.Rows) != 1 || rows.Rows[0].Total != 1 {
		t.Fatalf("unexpected audit report: %+v", rows.Rows)
	}
}

func TestRefreshAndMe(t *testing.T) {
	e := newTestEnv(t)

	me := decode[map[string]any](t, e.do(t, 2, http.MethodGet, "/v1/me", nil))
	if me["role"] != rbac.RoleGestor || me["email"] != "gestor@pm.gov.br" {
		t.Fatalf("unexpected identity: %+v", me)
	}

	pair, err := e.app.Auth.IssuePair(time.Now(), auth.Subject{UserID: 2, Role: rbac.RoleGestor})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	w := e.do(t, 0, http.MethodPost, "/v1/auth/refresh", map[string]any{"refresh_token": pair.RefreshToken})
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := e.do(t, 0, http.MethodPost, "/v1/auth/refresh", map[string]any{"refresh_token": pair.AccessToken}); w.Code != http.StatusUnauthorized {
		t.Fatalf("access token as refresh: expected 401, got %d", w.Code)
	}

	inactive, _ := e.app.Auth.IssuePair(time.Now(), auth.Subject{UserID: 4, Role: rbac.RoleServidor})
	if w := e.do(t, 0, http.MethodPost, "/v1/auth/refresh", map[string]any{"refresh_token": inactive.RefreshToken}); w.Code != http.StatusUnauthorized {
		t.Fatalf("inactive user: expected 401, got %d", w.Code)
	}
}
