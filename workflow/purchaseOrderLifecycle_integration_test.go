package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/purchasing_backend/config"
	"bitbucket.org/mmdatafocus/purchasing_backend/lifecycle"
	"bitbucket.org/mmdatafocus/purchasing_backend/models"
	"bitbucket.org/mmdatafocus/purchasing_backend/utils"
	"bitbucket.org/mmdatafocus/purchasing_backend/workflow"
)

func TestPurchaseOrderLifecycle_EndToEnd(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "purchasing_test")
	t.Setenv("REDIS_POSTING_LOCK", "false")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()
	db := config.GetDB()

	businessId := "biz-integration-1"
	ctx := utils.SetBusinessIdInContext(context.Background(), businessId)
	ctx = utils.SetUserIdInContext(ctx, 7)
	ctx = utils.SetUserNameInContext(ctx, "U Kyaw")

	engine, err := lifecycle.NewEngine(config.BackendVariantBooks)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	po, err := models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		SupplierId:     1,
		DeliveryMethod: models.DeliveryMethodDelivery,
		OrderDate:      time.Now().UTC(),
		TaxRate:        decimal.NewFromInt(5),
		Items: []models.NewPurchaseOrderItem{
			{ProductId: 100, Name: "rice 25kg", QtyOrdered: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(40000)},
			{ProductId: 200, Name: "cooking oil 5L", QtyOrdered: decimal.NewFromInt(4), UnitCost: decimal.NewFromInt(22000)},
		},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseOrder: %v", err)
	}
	if po.CurrentStatus != models.PurchaseOrderStatusDraft {
		t.Fatalf("new order must be draft, got %s", po.CurrentStatus)
	}
	if po.OrderNumber == "" || po.SequenceNo == 0 {
		t.Fatalf("order number not assigned: %q / %d", po.OrderNumber, po.SequenceNo)
	}

	apply := func(action lifecycle.Action, input lifecycle.TransitionInput, receiptRef string) *models.PurchaseOrder {
		t.Helper()
		updated, err := workflow.ApplyPurchaseOrderTransition(ctx, engine, po.ID, action, input, nil, receiptRef)
		if err != nil {
			t.Fatalf("%s: %v", action, err)
		}
		return updated
	}

	updated := apply(lifecycle.ActionSubmit, lifecycle.TransitionInput{}, "")
	if updated.CurrentStatus != models.PurchaseOrderStatusPendingApproval {
		t.Fatalf("after submit: %s", updated.CurrentStatus)
	}

	updated = apply(lifecycle.ActionApprove, lifecycle.TransitionInput{Notes: "within budget"}, "")
	if updated.CurrentStatus != models.PurchaseOrderStatusApproved {
		t.Fatalf("after approve: %s", updated.CurrentStatus)
	}
	if updated.ApproverUserId != 7 || updated.ApprovedAt == nil {
		t.Fatalf("approver metadata missing: %d %v", updated.ApproverUserId, updated.ApprovedAt)
	}

	updated = apply(lifecycle.ActionSend, lifecycle.TransitionInput{Channel: models.SendChannelEmail}, "")
	if updated.CurrentStatus != models.PurchaseOrderStatusSent {
		t.Fatalf("after send: %s", updated.CurrentStatus)
	}

	itemRice := updated.Items[0].ID
	itemOil := updated.Items[1].ID

	// Partial delivery: 6 of 10 rice.
	updated = apply(lifecycle.ActionReceive, lifecycle.TransitionInput{
		Lines: []lifecycle.ReceiveLine{{ItemId: itemRice, Quantity: decimal.NewFromInt(6)}},
	}, "grn-001")
	if updated.CurrentStatus != models.PurchaseOrderStatusPartial {
		t.Fatalf("after partial receive: %s", updated.CurrentStatus)
	}
	if updated.ReceivedDate != nil {
		t.Fatal("received_date must stay unset while partial")
	}

	// Duplicate delivery of the same receipt must not double-count.
	updated, err = workflow.ApplyPurchaseOrderTransition(ctx, engine, po.ID, lifecycle.ActionReceive,
		lifecycle.TransitionInput{Lines: []lifecycle.ReceiveLine{{ItemId: itemRice, Quantity: decimal.NewFromInt(6)}}},
		nil, "grn-001")
	if err != nil {
		t.Fatalf("duplicate receive: %v", err)
	}
	fresh, err := models.GetPurchaseOrder(ctx, po.ID)
	if err != nil {
		t.Fatalf("GetPurchaseOrder: %v", err)
	}
	if got := fresh.ItemById(itemRice).QtyReceived; !got.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("duplicate receipt double-counted: qty_received=%s", got)
	}

	// Hold from partial, then resume back to partial.
	updated = apply(lifecycle.ActionHold, lifecycle.TransitionInput{Reason: "supplier audit"}, "")
	if updated.CurrentStatus != models.PurchaseOrderStatusOnHold {
		t.Fatalf("after hold: %s", updated.CurrentStatus)
	}
	updated = apply(lifecycle.ActionResume, lifecycle.TransitionInput{}, "")
	if updated.CurrentStatus != models.PurchaseOrderStatusPartial {
		t.Fatalf("after resume: %s", updated.CurrentStatus)
	}
	if updated.StatusBeforeHold != nil || updated.HoldReason != "" {
		t.Fatal("hold metadata not cleared on resume")
	}

	// Over-receipt must reject the whole batch, valid line included.
	_, err = workflow.ApplyPurchaseOrderTransition(ctx, engine, po.ID, lifecycle.ActionReceive,
		lifecycle.TransitionInput{Lines: []lifecycle.ReceiveLine{
			{ItemId: itemRice, Quantity: decimal.NewFromInt(5)},
			{ItemId: itemOil, Quantity: decimal.NewFromInt(2)},
		}}, nil, "grn-002")
	var guard *lifecycle.GuardViolation
	if !errors.As(err, &guard) {
		t.Fatalf("expected GuardViolation for over-receipt, got %v", err)
	}
	fresh, _ = models.GetPurchaseOrder(ctx, po.ID)
	if got := fresh.ItemById(itemOil).QtyReceived; !got.IsZero() {
		t.Fatalf("rejected batch partially applied: oil qty_received=%s", got)
	}

	// Final delivery completes both lines.
	updated = apply(lifecycle.ActionReceive, lifecycle.TransitionInput{
		Lines: []lifecycle.ReceiveLine{
			{ItemId: itemRice, Quantity: decimal.NewFromInt(4)},
			{ItemId: itemOil, Quantity: decimal.NewFromInt(4)},
		},
	}, "grn-003")
	if updated.CurrentStatus != models.PurchaseOrderStatusReceived {
		t.Fatalf("after final receive: %s", updated.CurrentStatus)
	}
	if updated.ReceivedDate == nil {
		t.Fatal("received_date must be set on full receipt")
	}

	// Ledger holds one row per applied line, in insertion order.
	entries, err := models.LedgerEntriesForOrder(db.WithContext(ctx), businessId, po.ID)
	if err != nil {
		t.Fatalf("LedgerEntriesForOrder: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 ledger entries, got %d", len(entries))
	}

	// Stock summary reflects the received totals.
	var summary models.StockSummary
	if err := db.WithContext(ctx).
		Where("business_id = ? AND product_id = ?", businessId, 100).
		First(&summary).Error; err != nil {
		t.Fatalf("fetch stock summary: %v", err)
	}
	if summary.OnHandQty.Cmp(decimal.NewFromInt(10)) != 0 {
		t.Fatalf("expected on-hand 10 for rice, got %s", summary.OnHandQty)
	}

	updated = apply(lifecycle.ActionFile, lifecycle.TransitionInput{}, "")
	if updated.CurrentStatus != models.PurchaseOrderStatusFiled {
		t.Fatalf("after file: %s", updated.CurrentStatus)
	}

	// Terminal: nothing else is accepted.
	_, err = workflow.ApplyPurchaseOrderTransition(ctx, engine, po.ID, lifecycle.ActionSubmit,
		lifecycle.TransitionInput{}, nil, "")
	if !errors.As(err, &guard) {
		t.Fatalf("expected GuardViolation from filed, got %v", err)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("purchasing-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("purchasing-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=purchasing_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
