package audit

// Tracked actions.
const (
	ActionCreated            = "protocolo_criado"
	ActionEdited             = "protocolo_editado"
	ActionDeleted            = "protocolo_deletado"
	ActionRestored           = "protocolo_restaurado"
	ActionMoved              = "protocolo_movimentado"
	ActionStatusChanged      = "status_alterado"
	ActionPriorityChanged    = "prioridade_alterada"
	ActionAttachmentAdded    = "anexo_adicionado"
	ActionAttachmentRemoved  = "anexo_removido"
	ActionAttachmentViewed   = "anexo_visualizado"
	ActionApprovalRequested  = "aprovacao_solicitada"
	ActionApproved           = "protocolo_aprovado"
	ActionRejected           = "protocolo_rejeitado"
	ActionApprovalCanceled   = "aprovacao_cancelada"
	ActionWorkflowCompleted  = "workflow_concluido"
	ActionOwnerChanged       = "responsavel_alterado"
	ActionDelegationCreated  = "delegacao_criada"
	ActionViewed             = "acesso_visualizacao"
	ActionExported           = "exportacao"
	ActionPrinted            = "impressao"
	ActionDeadlineAlert      = "alerta_prazo"
	ActionAutoEscalation     = "escalacao_automatica"
	ActionAccessDenied       = "acesso_negado"
	ActionUnauthorizedChange = "tentativa_alteracao"
)

var actionLabels = map[string]string{
	ActionCreated:            "Protocolo Criado",
	ActionEdited:             "Protocolo Editado",
	ActionDeleted:            "Protocolo Deletado",
	ActionRestored:           "Protocolo Restaurado",
	ActionMoved:              "Protocolo Movimentado",
	ActionStatusChanged:      "Status Alterado",
	ActionPriorityChanged:    "Prioridade Alterada",
	ActionAttachmentAdded:    "Anexo Adicionado",
	ActionAttachmentRemoved:  "Anexo Removido",
	ActionAttachmentViewed:   "Anexo Visualizado",
	ActionApprovalRequested:  "Aprovação Solicitada",
	ActionApproved:           "Protocolo Aprovado",
	ActionRejected:           "Protocolo Rejeitado",
	ActionApprovalCanceled:   "Aprovação Cancelada",
	ActionWorkflowCompleted:  "Workflow Concluído",
	ActionOwnerChanged:       "Responsável Alterado",
	ActionDelegationCreated:  "Delegação Criada",
	ActionViewed:             "Visualização",
	ActionExported:           "Exportação",
	ActionPrinted:            "Impressão",
	ActionDeadlineAlert:      "Alerta de Prazo",
	ActionAutoEscalation:     "Escalação Automática",
	ActionAccessDenied:       "Acesso Negado",
	ActionUnauthorizedChange: "Tentativa de Alteração",
}

// Label returns the human label of an action, or the action itself when unknown.
func Label(action string) string {
	if l, ok := actionLabels[action]; ok {
		return l
	}
	return action
}
