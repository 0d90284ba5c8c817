package services

import "korner-support-service/internal/models"

// Допустимые переходы статусов KYC.
// blocked в таблицу не входит: это отображение поверх настроек пользователя.
var KYCTransitions = map[string]map[string]bool{
	"":                         {models.KYCStatusDraft: true},
	models.KYCStatusNotStarted: {models.KYCStatusDraft: true},
	models.KYCStatusDraft:      {models.KYCStatusPending: true},
	models.KYCStatusPending:    {models.KYCStatusApproved: true, models.KYCStatusRejected: true},
	models.KYCStatusApproved:   {models.KYCStatusRevoked: true},
	models.KYCStatusRejected:   {}, // новая попытка = новая заявка
	models.KYCStatusRevoked:    {},
}

// Тикеты: любой статус в любой, ограничений пока нет.
var TicketTransitions = map[string]map[string]bool{
	models.TicketStatusNew:        allTicketStatuses(),
	models.TicketStatusInProgress: allTicketStatuses(),
	models.TicketStatusResolved:   allTicketStatuses(),
	models.TicketStatusClosed:     allTicketStatuses(),
}

func allTicketStatuses() map[string]bool {
	out := make(map[string]bool, len(models.TicketStatuses))
	for _, s := range models.TicketStatuses {
		out[s.(string)] = true
	}
	return out
}

func canTransition(current, to string, table map[string]map[string]bool) bool {
	nexts, ok := table[current]
	if !ok {
		return false
	}
	return nexts[to]
}
