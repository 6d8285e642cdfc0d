package notify

import (
	"context"
	"fmt"

	"protocolo-municipal/internal/records"
)

// Subscribe tells the responsible party about every newly created record.
func (d *Dispatcher) Subscribe(store records.Store) {
	store.OnSaved(func(ctx context.Context, ev records.SaveEvent) {
		if !ev.Created || ev.After.ResponsavelEmail == "" {
			return
		}
		if err := d.Dispatch(ctx, createdNotification(ev.After)); err != nil {
			d.log.Warn("novo protocolo notification failed", "record_id", ev.After.ID, "err", err)
		}
	})
}

func createdNotification(r records.Record) Notification {
	return Notification{
		RecordID:   r.ID,
		Numero:     r.Numero,
		Type:       TypeNovoProtocolo,
		Message:    fmt.Sprintf("Um novo protocolo foi criado: %s", r.Numero),
		Priority:   records.PriorityMedia,
		Recipients: []string{r.ResponsavelEmail},
	}
}
