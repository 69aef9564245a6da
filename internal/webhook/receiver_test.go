package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yungbote/vendorqueue/internal/config"
	"github.com/yungbote/vendorqueue/internal/locks"
	"github.com/yungbote/vendorqueue/internal/model"
	"github.com/yungbote/vendorqueue/internal/pkg/logger"
	jobrepo "github.com/yungbote/vendorqueue/internal/repo"
)

func testReceiver(t *testing.T) (*Receiver, *gorm.DB, config.Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=private"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.Job{}, &model.JobLog{}, &model.DeadLetterEntry{}, &model.WebhookEvent{}, &model.WebhookSubscription{}, &model.WebhookHealthEvent{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	repo := jobrepo.New(db, log, jobrepo.SQLiteCapabilities(), locks.NewMemoryLocker(), model.DefaultMaxAttempts)
	store := NewStore(db)
	cfgStore := config.NewMemoryStore()
	_ = cfgStore.Set(context.Background(), keySecretCurrent, "topsecret")
	return NewReceiver(store, repo, cfgStore, nil, log), db, cfgStore
}

func signedRequest(t *testing.T, secret string, body []byte) *http.Request {
	t.Helper()
	ts := fmt.Sprintf("%d", time.Now().Unix())
	digest := hmacSHA256([]byte(secret), body)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/vendor", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Timestamp", ts)
	req.Header.Set("X-Webhook-Signature", base64Encode(digest))
	return req
}

func runIntake(t *testing.T, recv *Receiver, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	recv.Intake(c)
	return w
}

func TestIntakeValidSignatureFansOutToSyncInventory(t *testing.T) {
	recv, db, _ := testReceiver(t)
	body := []byte(`{"type":"inventory.update","data":{"product_id":"123","outlet_id":"1"}}`)
	req := signedRequest(t, "topsecret", body)

	w := runIntake(t, recv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["ok"] != true {
		t.Fatalf("expected ok:true, got %+v", resp)
	}

	var count int64
	db.Model(&model.Job{}).Where("type = ?", model.TypeSyncInventory).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 sync_inventory job enqueued, got %d", count)
	}

	var ev model.WebhookEvent
	if err := db.Where("event_id = ?", resp["event_id"]).First(&ev).Error; err != nil {
		t.Fatalf("find webhook event: %v", err)
	}
	if ev.Status != model.WebhookCompleted {
		t.Fatalf("expected event status completed, got %s", ev.Status)
	}
}

func TestIntakeInvalidSignatureRejectedUnderStrictPolicy(t *testing.T) {
	recv, db, _ := testReceiver(t)
	body := []byte(`{"type":"product.update"}`)
	req := signedRequest(t, "wrong-secret", body)

	w := runIntake(t, recv, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 under strict policy, got %d", w.Code)
	}

	var count int64
	db.Model(&model.WebhookEvent{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no event persisted for a rejected request, got %d", count)
	}
}

func TestIntakeInvalidSignatureAcceptedUnderLenientPolicy(t *testing.T) {
	recv, _, cfgStore := testReceiver(t)
	_ = cfgStore.Set(context.Background(), keySignaturePolicy, "lenient")
	body := []byte(`{"type":"product.update"}`)
	req := signedRequest(t, "wrong-secret", body)

	w := runIntake(t, recv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 under lenient policy despite bad signature, got %d", w.Code)
	}
}

func TestIntakeDisabledRespondsForbidden(t *testing.T) {
	recv, _, cfgStore := testReceiver(t)
	_ = cfgStore.Set(context.Background(), keyDisabled, "true")
	body := []byte(`{"type":"product.update"}`)
	req := signedRequest(t, "topsecret", body)

	w := runIntake(t, recv, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when webhooks are disabled, got %d", w.Code)
	}
}

func TestIntakeDuplicateEventIDIsAcknowledgedWithoutReprocessing(t *testing.T) {
	recv, db, _ := testReceiver(t)
	body := []byte(`{"type":"sale.update","event_id":"evt-fixed","data":{"id":"s1"}}`)

	req1 := signedRequest(t, "topsecret", body)
	if w := runIntake(t, recv, req1); w.Code != http.StatusOK {
		t.Fatalf("first intake failed: %d %s", w.Code, w.Body.String())
	}
	req2 := signedRequest(t, "topsecret", body)
	w2 := runIntake(t, recv, req2)
	if w2.Code != http.StatusOK {
		t.Fatalf("second intake failed: %d %s", w2.Code, w2.Body.String())
	}

	var count int64
	db.Model(&model.Job{}).Where("type = ?", model.TypeSyncSale).Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly 1 job enqueued across duplicate deliveries, got %d", count)
	}
}
