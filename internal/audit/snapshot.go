package audit

import (
	"strconv"

	"protocolo-municipal/internal/records"
)

// TakeSnapshot captures the tracked attributes of r as strings.
func TakeSnapshot(r records.Record) Snapshot {
	prazo := ""
	if r.PrazoDias > 0 {
		prazo = strconv.Itoa(r.PrazoDias)
	}
	return Snapshot{
		"numero":            r.Numero,
		"data":              r.DataAbertura,
		"tipo":              r.Tipo,
		"tipo_documento":    r.TipoDocumento,
		"origem":            r.Origem,
		"destino":           r.Destino,
		"assunto":           r.Assunto,
		"descricao":         r.Descricao,
		"prioridade":        string(r.Prioridade),
		"prazo":             prazo,
		"status":            string(r.Status),
		"responsavel":       r.Responsavel,
		"responsavel_email": r.ResponsavelEmail,
		"drive_link":        r.DriveLink,
	}
}

// Diff compares two snapshots field by field. Keys missing on one side
// compare as empty strings.
func Diff(before, after Snapshot) map[string]Change {
	changes := make(map[string]Change)
	for k, old := range before {
		if nw := after[k]; old != nw {
			changes[k] = Change{Old: old, New: nw}
		}
	}
	for k, nw := range after {
		if _, seen := before[k]; seen {
			continue
		}
		if nw != "" {
			changes[k] = Change{Old: "", New: nw}
		}
	}
	return changes
}
