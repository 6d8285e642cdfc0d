package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"protocolo-municipal/internal/audit"
	"protocolo-municipal/internal/calendar"
	"protocolo-municipal/internal/notify"
	"protocolo-municipal/internal/records"

	"github.com/gin-gonic/gin"
)

type recordRequest struct {
	Numero           string           `json:"numero"`
	Tipo             string           `json:"tipo"`
	TipoDocumento    string           `json:"tipo_documento"`
	DataAbertura     string           `json:"data_abertura"`
	Origem           string           `json:"origem"`
	Destino          string           `json:"destino"`
	Assunto          string           `json:"assunto"`
	Descricao        string           `json:"descricao"`
	Status           records.Status   `json:"status"`
	Prioridade       records.Priority `json:"prioridade"`
	PrazoDias        int              `json:"prazo_dias"`
	Responsavel      string           `json:"responsavel"`
	ResponsavelEmail string           `json:"responsavel_email"`
	DriveLink        string           `json:"drive_link"`
	Valor            float64          `json:"valor"`
}

func (r recordRequest) validate() error {
	if strings.TrimSpace(r.Numero) == "" {
		return fmt.Errorf("%w: numero is required", errBadRequest)
	}
	if r.Status != "" && !r.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", errBadRequest, r.Status)
	}
	if r.Prioridade != "" && !r.Prioridade.Valid() {
		return fmt.Errorf("%w: unknown prioridade %q", errBadRequest, r.Prioridade)
	}
	if r.PrazoDias < 0 {
		return fmt.Errorf("%w: prazo_dias must be >= 0", errBadRequest)
	}
	if r.DataAbertura != "" {
		if _, err := calendar.ParseDate(r.DataAbertura); err != nil {
			return fmt.Errorf("%w: data_abertura: %v", errBadRequest, err)
		}
	}
	return nil
}

// apply copies the editable fields onto rec. Derived deadline and workflow
// fields are never client-writable.
func (r recordRequest) apply(rec *records.Record) {
	rec.Numero = strings.TrimSpace(r.Numero)
	rec.Tipo = r.Tipo
	rec.TipoDocumento = strings.TrimSpace(r.TipoDocumento)
	// Stored as YYYY-MM-DD whatever layout the client sent; date filters
	// compare the column as text.
	if d, err := calendar.ParseDate(r.DataAbertura); err == nil {
		rec.DataAbertura = calendar.Format(d)
	}
	rec.Origem = r.Origem
	rec.Destino = r.Destino
	rec.Assunto = r.Assunto
	rec.Descricao = r.Descricao
	if r.Status != "" {
		rec.Status = r.Status
	}
	if r.Prioridade != "" {
		rec.Prioridade = r.Prioridade
	}
	rec.PrazoDias = r.PrazoDias
	rec.Responsavel = r.Responsavel
	rec.ResponsavelEmail = strings.TrimSpace(r.ResponsavelEmail)
	rec.DriveLink = r.DriveLink
	rec.Valor = r.Valor
}

func (h Handlers) CreateRecord(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if err := req.validate(); err != nil {
		writeError(c, err)
		return
	}

	rec := records.Record{CreatedBy: uid}
	req.apply(&rec)
	if rec.DataAbertura == "" {
		rec.DataAbertura = calendar.Format(h.Calendar.Today())
	}

	ctx := c.Request.Context()
	if err := h.Records.Create(ctx, &rec); err != nil {
		writeError(c, err)
		return
	}
	// Hooks may have changed derived fields and status.
	saved, err := h.Records.Get(ctx, rec.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (h Handlers) GetRecord(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	rec, err := h.Records.Get(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.Audit != nil {
		_, _ = h.Audit.Log(ctx, id, audit.ActionViewed, audit.Options{Severity: audit.SeverityDebug})
	}
	c.JSON(http.StatusOK, rec)
}

func (h Handlers) UpdateRecord(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if err := req.validate(); err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	rec, err := h.Records.Get(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	req.apply(&rec)
	if err := h.Records.Update(ctx, rec); err != nil {
		writeError(c, err)
		return
	}
	saved, err := h.Records.Get(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h Handlers) DeleteRecord(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.Records.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type moveRequest struct {
	Destino          string         `json:"destino"`
	Status           records.Status `json:"status"`
	Responsavel      string         `json:"responsavel"`
	ResponsavelEmail string         `json:"responsavel_email"`
	Observacao       string         `json:"observacao"`
}

// MoveRecord forwards a protocol to another department.
func (h Handlers) MoveRecord(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	req.Destino = strings.TrimSpace(req.Destino)
	if req.Destino == "" {
		badRequest(c, "destino is required")
		return
	}
	if req.Status != "" && !req.Status.Valid() {
		badRequest(c, fmt.Sprintf("unknown status %q", req.Status))
		return
	}

	ctx := c.Request.Context()
	rec, err := h.Records.Get(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	from := rec.Destino
	rec.Origem = from
	rec.Destino = req.Destino
	if req.Status != "" {
		rec.Status = req.Status
	}
	if req.Responsavel != "" {
		rec.Responsavel = req.Responsavel
	}
	if req.ResponsavelEmail != "" {
		rec.ResponsavelEmail = strings.TrimSpace(req.ResponsavelEmail)
	}
	if err := h.Records.Update(ctx, rec); err != nil {
		writeError(c, err)
		return
	}

	if h.Audit != nil {
		_, _ = h.Audit.Log(ctx, id, audit.ActionMoved, audit.Options{
			Description: fmt.Sprintf("Protocolo movimentado de %s para %s", orDash(from), req.Destino),
			Metadata: map[string]any{
				"de":         from,
				"para":       req.Destino,
				"observacao": req.Observacao,
			},
		})
	}
	if h.Notifier != nil && rec.ResponsavelEmail != "" {
		n := notify.Notification{
			RecordID:   rec.ID,
			Numero:     rec.Numero,
			Type:       notify.TypeProtocoloMovido,
			Message:    fmt.Sprintf("O protocolo %s foi movimentado para %s.", rec.Numero, req.Destino),
			Priority:   rec.Prioridade,
			Recipients: []string{rec.ResponsavelEmail},
		}
		_ = h.Notifier.Dispatch(ctx, n)
	}

	saved, err := h.Records.Get(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// GetDeadline returns the deadline computed as of today, without persisting it.
func (h Handlers) GetDeadline(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	rec, err := h.Records.Get(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	info := h.SLA.ComputeDeadline(ctx, rec)
	c.JSON(http.StatusOK, gin.H{
		"record_id":        rec.ID,
		"prazo_dias":       info.PrazoDias,
		"data_limite":      calendar.Format(info.DataLimite),
		"percentual_prazo": info.PercentualPrazo,
		"nivel_alerta":     info.NivelAlerta,
		"dias_atraso":      info.DiasAtraso,
	})
}

func (h Handlers) RecordAudit(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	entries, err := h.Audit.RecordLog(c.Request.Context(), id, queryLimit(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
