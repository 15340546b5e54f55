package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/payments"
)

type sessionObject struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	PaymentStatus string            `json:"payment_status"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	Metadata      map[string]string `json:"metadata"`
}

type webhookPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object sessionObject `json:"object"`
	} `json:"data"`
}

// mockwebhook signs and posts a checkout event the way the payment
// processor does, so the provisioning flow can be driven locally.
func main() {
	url := flag.String("url", "http://localhost:8080/webhooks/payments", "Webhook URL")
	secret := flag.String("secret", os.Getenv("PAYMENTS_WEBHOOK_SECRET"), "Webhook secret")
	orderID := flag.String("order", "", "Order id (metadata.order_id)")
	eventID := flag.String("event-id", "evt_"+shortID(), "Event ID; reuse one to simulate a redelivery")
	eventType := flag.String("type", payments.EventCheckoutCompleted, "Event type")
	status := flag.String("status", payments.PaymentStatusPaid, "payment_status (paid, unpaid, no_payment_required)")
	email := flag.String("email", "", "customer_email")
	repeat := flag.Int("repeat", 1, "Send the same event this many times")
	dryRun := flag.Bool("dry-run", false, "Only print signature header, don't send")
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "Error: secret not provided and PAYMENTS_WEBHOOK_SECRET not set")
		os.Exit(1)
	}
	if *orderID == "" {
		fmt.Fprintln(os.Stderr, "Error: -order is required")
		os.Exit(1)
	}

	payload := webhookPayload{ID: *eventID, Type: *eventType}
	payload.Data.Object = sessionObject{
		ID:            "cs_mock_" + shortID(),
		PaymentIntent: "pi_mock_" + shortID(),
		PaymentStatus: *status,
		CustomerEmail: *email,
		Metadata:      map[string]string{"order_id": *orderID},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling payload: %v\n", err)
		os.Exit(1)
	}

	v := payments.NewVerifier(*secret, 5*time.Minute)
	fmt.Printf("Body: %s\n", body)

	for i := 0; i < *repeat; i++ {
		header := v.Header(time.Now(), body)
		fmt.Printf("%s: %s\n", payments.SignatureHeader, header)
		if *dryRun {
			fmt.Println("[DRY RUN] Not sending request")
			continue
		}
		if err := send(*url, header, body); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

func send(url, header string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(payments.SignatureHeader, header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	fmt.Printf("Status: %d\nResponse: %s\n", resp.StatusCode, respBody)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
