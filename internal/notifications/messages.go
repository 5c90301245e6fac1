package notifications

import (
	"fmt"
	"time"

	"github.com/albapepper/medminder/internal/model"
	"github.com/albapepper/medminder/internal/stock"
)

func noticeType(f stock.Forecast) model.NotificationType {
	if f.OutOfStock() {
		return model.NotifyOutOfStock
	}
	return model.NotifyLowStock
}

func exhaustDate(f stock.Forecast, loc *time.Location) string {
	if f.PredictedExhaustDate == nil {
		return "an unknown date"
	}
	return f.PredictedExhaustDate.In(loc).Format("2006-01-02")
}

func ownerNotice(f stock.Forecast, loc *time.Location) model.Notification {
	if f.OutOfStock() {
		return model.Notification{
			Type:    noticeType(f),
			Title:   fmt.Sprintf("%s has run out", f.Name),
			Content: fmt.Sprintf("Your medication %q has run out. Please restock soon.", f.Name),
		}
	}
	return model.Notification{
		Type:  noticeType(f),
		Title: fmt.Sprintf("%s is running low", f.Name),
		Content: fmt.Sprintf("Your medication %q will last about %d more day(s) (%d left, %s per dose) and should run out on %s. Please restock ahead of time.",
			f.Name, f.DaysRemaining, f.RemainingQuantity, f.Dosage, exhaustDate(f, loc)),
	}
}

func contactNotice(userName string, f stock.Forecast, loc *time.Location) model.Notification {
	if f.OutOfStock() {
		return model.Notification{
			Type:    noticeType(f),
			Title:   fmt.Sprintf("%s's medication %q has run out", userName, f.Name),
			Content: fmt.Sprintf("%s's medication %q (%s) has run out. Please help restock it.", userName, f.Name, f.Dosage),
		}
	}
	return model.Notification{
		Type:  noticeType(f),
		Title: fmt.Sprintf("%s's medication %q is running low", userName, f.Name),
		Content: fmt.Sprintf("%s's medication %q (%s) will last about %d more day(s) with %d left, running out on %s. Please help restock it in time.",
			userName, f.Name, f.Dosage, f.DaysRemaining, f.RemainingQuantity, exhaustDate(f, loc)),
	}
}
