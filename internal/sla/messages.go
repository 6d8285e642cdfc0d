package sla

import (
	"fmt"
	"math"

	"protocolo-municipal/internal/notify"
	"protocolo-municipal/internal/records"
)

func alertNotification(r records.Record, info DeadlineInfo) notify.Notification {
	limite := info.DataLimite.Format("02/01/2006")
	n := notify.Notification{
		RecordID: r.ID,
		Numero:   r.Numero,
		Extra: map[string]any{
			"nivel_alerta":     string(info.NivelAlerta),
			"percentual_prazo": info.PercentualPrazo,
			"data_limite":      limite,
		},
	}
	if r.ResponsavelEmail != "" {
		n.Recipients = []string{r.ResponsavelEmail}
	}

	switch info.NivelAlerta {
	case LevelAmarelo:
		n.Type = notify.TypePrazoAmarelo
		n.Priority = records.PriorityMedia
		n.Message = fmt.Sprintf("O protocolo %s atingiu %.0f%% do prazo. Data limite: %s.", r.Numero, info.PercentualPrazo, limite)
	case LevelLaranja:
		n.Type = notify.TypePrazoLaranja
		n.Priority = records.PriorityAlta
		n.Message = fmt.Sprintf("Atenção: o protocolo %s atingiu %.0f%% do prazo. Data limite: %s.", r.Numero, info.PercentualPrazo, limite)
	default:
		n.Type = notify.TypePrazoVermelho
		n.Priority = records.PriorityUrgente
		n.Message = fmt.Sprintf("O protocolo %s está atrasado há %d dia(s). Data limite: %s.", r.Numero, info.DiasAtraso, limite)
		n.Extra["dias_atraso"] = info.DiasAtraso
	}
	n.Title = n.Type.Label()
	return n
}

func roundTo2(v float64) float64 { return math.Round(v*100) / 100 }
