package esim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/thespeedingatom/soviario-app-sub000/internal/storage"
)

// DiagnosticsArchiver keeps the raw provider answer of failed provisioning
// calls so support can inspect them after the order is marked failed.
type DiagnosticsArchiver struct {
	store storage.Storage
	now   func() time.Time
}

func NewDiagnosticsArchiver(s storage.Storage) *DiagnosticsArchiver {
	return &DiagnosticsArchiver{store: s, now: time.Now}
}

// Issued is an eSIM the provider handed out for one order item.
type Issued struct {
	ItemID string
	Credentials
}

type issuedRecord struct {
	ItemID         string `json:"item_id"`
	ESIMUID        string `json:"esim_uid,omitempty"`
	ICCID          string `json:"iccid,omitempty"`
	ActivationCode string `json:"activation_code"`
	ManualCode     string `json:"manual_code,omitempty"`
	SMDPAddress    string `json:"smdp_address,omitempty"`
}

type failureRecord struct {
	OrderID      string         `json:"order_id"`
	Error        string         `json:"error"`
	UpstreamCode int            `json:"upstream_status,omitempty"`
	UpstreamBody string         `json:"upstream_body,omitempty"`
	Issued       []issuedRecord `json:"issued,omitempty"`
	RecordedAt   time.Time      `json:"recorded_at"`
}

// ArchiveFailure stores a JSON record under
// provisioning-failures/<order>/<unix-nanos>.json and returns its key. The
// record lists every eSIM issued before the failure, so they can be
// recovered even when the order row could not be updated.
func (a *DiagnosticsArchiver) ArchiveFailure(ctx context.Context, orderID string, cause error, issued []Issued) (string, error) {
	now := a.now().UTC()
	rec := failureRecord{OrderID: orderID, Error: cause.Error(), RecordedAt: now}
	for _, is := range issued {
		rec.Issued = append(rec.Issued, issuedRecord{
			ItemID:         is.ItemID,
			ESIMUID:        is.ESIMUID,
			ICCID:          is.ICCID,
			ActivationCode: is.ActivationCode,
			ManualCode:     is.ManualCode,
			SMDPAddress:    is.SMDPAddress,
		})
	}
	var pe *ProvisioningError
	if errors.As(cause, &pe) {
		rec.UpstreamCode = pe.StatusCode
		rec.UpstreamBody = pe.Body
	}

	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	res, err := a.store.Put(ctx, bytes.NewReader(b), storage.PutInput{
		Key:         fmt.Sprintf("provisioning-failures/%s/%d.json", orderID, now.UnixNano()),
		Filename:    "failure.json",
		ContentType: "application/json",
		Size:        int64(len(b)),
	})
	if err != nil {
		return "", fmt.Errorf("archive provisioning failure: %w", err)
	}
	return res.Key, nil
}
