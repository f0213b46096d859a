package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/koperasi/internal/app"
)

// --- Payment Session ---

type PaymentSessionInput struct {
	ID string `path:"id" doc:"Tenant ID"`
}

type PaymentSessionOutput struct {
	Body struct {
		OrderID     string `json:"order_id" doc:"Order ID sent to the payment provider"`
		Token       string `json:"token" doc:"Snap token"`
		RedirectURL string `json:"redirect_url" doc:"Hosted checkout page"`
	}
}

// --- Notification ---

type NotificationInput struct {
	RawBody []byte
}

type NotificationOutput struct {
	Body struct {
		Status string `json:"status" enum:"queued,ignored" doc:"What became of the notification"`
	}
}

func registerPayments(api huma.API, svc *app.PaymentService) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-payment-session",
		Method:        http.MethodPost,
		Path:          "/api/v1/tenants/{id}/payment-session",
		Summary:       "Open a checkout for a pending cooperative's subscription",
		Tags:          []string{"Payments"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *PaymentSessionInput) (*PaymentSessionOutput, error) {
		if err := platformOnly(ctx); err != nil {
			return nil, err
		}
		session, err := svc.CreateSession(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &PaymentSessionOutput{}
		out.Body.OrderID = session.OrderID
		out.Body.Token = session.Token
		out.Body.RedirectURL = session.RedirectURL
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "payment-notification",
		Method:      http.MethodPost,
		Path:        "/api/v1/payments/notifications",
		Summary:     "Receive a payment provider notification",
		Description: "Acknowledges every notification it will never act on. Responds 500 only when the provider should redeliver.",
		Tags:        []string{"Payments"},
	}, func(ctx context.Context, input *NotificationInput) (*NotificationOutput, error) {
		outcome, err := svc.HandleNotification(ctx, input.RawBody)
		if err != nil {
			slog.ErrorContext(ctx, "payment notification failed", "error", err)
			return nil, huma.Error500InternalServerError("notification could not be processed")
		}
		out := &NotificationOutput{}
		out.Body.Status = string(outcome)
		return out, nil
	})
}
