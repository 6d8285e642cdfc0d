package notify

import (
	"time"

	"protocolo-municipal/internal/records"
)

type Type string

const (
	TypeNovoProtocolo     Type = "novo_protocolo"
	TypeProtocoloMovido   Type = "protocolo_movido"
	TypeProtocoloEditado  Type = "protocolo_editado"
	TypeAtribuidoAMim     Type = "atribuido_a_mim"
	TypePrazoAmarelo      Type = "prazo_amarelo"
	TypePrazoLaranja      Type = "prazo_laranja"
	TypePrazoVermelho     Type = "prazo_vermelho"
	TypeComentario        Type = "comentario"
	TypeAprovacaoPendente Type = "aprovacao_pendente"
	TypeAprovado          Type = "aprovado"
	TypeRejeitado         Type = "rejeitado"
)

var typeLabels = map[Type]string{
	TypeNovoProtocolo:     "Novo Protocolo",
	TypeProtocoloMovido:   "Protocolo Movimentado",
	TypeProtocoloEditado:  "Protocolo Editado",
	TypeAtribuidoAMim:     "Atribuído a Mim",
	TypePrazoAmarelo:      "Prazo em 50%",
	TypePrazoLaranja:      "Prazo em 80%",
	TypePrazoVermelho:     "Protocolo Atrasado",
	TypeComentario:        "Novo Comentário",
	TypeAprovacaoPendente: "Aprovação Pendente",
	TypeAprovado:          "Protocolo Aprovado",
	TypeRejeitado:         "Protocolo Rejeitado",
}

func (t Type) Label() string {
	if l, ok := typeLabels[t]; ok {
		return l
	}
	return string(t)
}

// Notification is one dispatch request. Recipients are e-mail addresses;
// channels that address users (in-app) resolve them through the directory.
type Notification struct {
	ID         string           `json:"id"`
	RecordID   int64            `json:"record_id"`
	Numero     string           `json:"numero,omitempty"`
	Type       Type             `json:"type"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	Priority   records.Priority `json:"priority"`
	Recipients []string         `json:"recipients"`
	Extra      map[string]any   `json:"extra,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// InboxItem is an in-app notification addressed to one user.
type InboxItem struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"user_id"`
	RecordID  int64            `json:"record_id"`
	Type      Type             `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Priority  records.Priority `json:"priority"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}
