package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"packmate/server/internal/ordertable"
)

// OzonClient клиент для Ozon Seller API (FBS).
// Модель Ozon отправление-центричная: одно отправление (posting) содержит
// несколько товарных позиций, отгружается только целиком.
type OzonClient struct {
	baseURL  string
	clientID string
	apiKey   string
	client   *http.Client
}

// NewOzonClient создает клиент Ozon с ограниченным таймаутом на запрос
func NewOzonClient(baseURL, clientID, apiKey string, timeout time.Duration) *OzonClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OzonClient{
		baseURL:  baseURL,
		clientID: clientID,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type ozonProduct struct {
	SKU      int64  `json:"sku"`
	OfferID  string `json:"offer_id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

type ozonPosting struct {
	PostingNumber  string        `json:"posting_number"`
	OrderID        int64         `json:"order_id"`
	Status         string        `json:"status"`
	Substatus      string        `json:"substatus"`
	IsExpress      bool          `json:"is_express"`
	InProcessAt    string        `json:"in_process_at"`
	Products       []ozonProduct `json:"products"`
}

type ozonUnfulfilledResponse struct {
	Result struct {
		Postings []ozonPosting `json:"postings"`
		Count    int           `json:"count"`
	} `json:"result"`
}

type ozonListResponse struct {
	Result struct {
		Postings []ozonPosting `json:"postings"`
		HasNext  bool          `json:"has_next"`
	} `json:"result"`
}

// doRequest выполняет запрос к Seller API с заголовками авторизации.
// 409 транслируется в ErrAlreadyAttached, 404 — в ErrNotFound
func (c *OzonClient) doRequest(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Client-Id", c.clientID)
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Ozon API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusConflict:
		return respBody, ErrAlreadyAttached
	case resp.StatusCode == http.StatusNotFound:
		return respBody, ErrNotFound
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("Ozon API error (status %d) %s: %s", resp.StatusCode, path, string(respBody))
	}
	return respBody, nil
}

// rowsFromPosting разворачивает отправление в строки: по одной на позицию
func rowsFromPosting(p ozonPosting) []RemoteOrder {
	createdAt, _ := time.Parse(time.RFC3339, p.InProcessAt)
	orders := make([]RemoteOrder, 0, len(p.Products))
	for _, product := range p.Products {
		price, err := decimal.NewFromString(product.Price)
		if err != nil {
			price = decimal.Zero
		}
		// offer_id хранит артикул, размер после слеша: "ABC-123/M"
		article := product.OfferID
		size := ""
		if idx := strings.LastIndex(product.OfferID, "/"); idx > 0 {
			article = product.OfferID[:idx]
			size = product.OfferID[idx+1:]
		}
		orders = append(orders, RemoteOrder{
			OrderID:       fmt.Sprintf("%d", p.OrderID),
			ShipmentID:    p.PostingNumber,
			VendorArticle: article,
			Size:          size,
			SKU:           product.SKU,
			Quantity:      product.Quantity,
			Price:         price,
			Status:        p.Status,
			SubStatus:     p.Substatus,
			IsExpress:     p.IsExpress,
			CreatedAt:     createdAt,
		})
	}
	return orders
}

// ListOrders загружает необработанные отправления FBS
func (c *OzonClient) ListOrders(ctx context.Context) ([]RemoteOrder, error) {
	payload := map[string]interface{}{
		"dir": "ASC",
		"filter": map[string]interface{}{
			"cutoff_from": time.Now().AddDate(0, 0, -14).UTC().Format(time.RFC3339),
			"cutoff_to":   time.Now().AddDate(0, 0, 14).UTC().Format(time.RFC3339),
		},
		"limit":  1000,
		"offset": 0,
	}

	data, err := c.doRequest(ctx, "/v3/posting/fbs/unfulfilled/list", payload)
	if err != nil {
		return nil, err
	}

	var parsed ozonUnfulfilledResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Ozon postings: %w", err)
	}

	var orders []RemoteOrder
	for _, p := range parsed.Result.Postings {
		orders = append(orders, rowsFromPosting(p)...)
	}

	log.Printf("📦 Ozon: загружено %d отправлений (%d строк)", len(parsed.Result.Postings), len(orders))
	return orders, nil
}

const (
	ozonListPageLimit = 1000
	// Страховка от бесконечной листалки при некорректном has_next
	ozonListMaxTotal = 10000
)

// GetStatuses запрашивает статусы отправлений по номерам.
// Ozon отдает статусы только через выборку списка: листаем страницы по
// has_next, пока не соберем все запрошенные номера или не упремся в кап
func (c *OzonClient) GetStatuses(ctx context.Context, postingNumbers []string) (map[string]StatusInfo, error) {
	wanted := make(map[string]bool, len(postingNumbers))
	for _, n := range postingNumbers {
		wanted[n] = true
	}

	result := make(map[string]StatusInfo)
	for offset := 0; offset < ozonListMaxTotal; offset += ozonListPageLimit {
		payload := map[string]interface{}{
			"dir": "DESC",
			"filter": map[string]interface{}{
				"since": time.Now().AddDate(0, 0, -30).UTC().Format(time.RFC3339),
				"to":    time.Now().UTC().Format(time.RFC3339),
			},
			"limit":  ozonListPageLimit,
			"offset": offset,
			"with":   map[string]bool{"financial_data": true},
		}

		data, err := c.doRequest(ctx, "/v3/posting/fbs/list", payload)
		if err != nil {
			return nil, err
		}

		var parsed ozonListResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("failed to unmarshal Ozon posting list: %w", err)
		}

		for _, p := range parsed.Result.Postings {
			if !wanted[p.PostingNumber] {
				continue
			}
			info := StatusInfo{Status: p.Status, SubStatus: p.Substatus}
			if len(p.Products) > 0 {
				if price, err := decimal.NewFromString(p.Products[0].Price); err == nil {
					info.Price = price
				}
			}
			result[p.PostingNumber] = info
		}

		if !parsed.Result.HasNext || len(result) == len(wanted) {
			break
		}
	}
	return result, nil
}

// Finalize передает отправление на отгрузку со всеми позициями.
// Ozon требует полный состав отправления в одном вызове
func (c *OzonClient) Finalize(ctx context.Context, req FinalizeRequest) error {
	products := make([]map[string]interface{}, 0, len(req.Items))
	for _, item := range req.Items {
		products = append(products, map[string]interface{}{
			"sku":      item.SKU,
			"quantity": item.Quantity,
		})
	}

	payload := map[string]interface{}{
		"posting_number": req.ShipmentID,
		"packages": []map[string]interface{}{
			{"products": products},
		},
	}

	_, err := c.doRequest(ctx, "/v4/posting/fbs/ship", payload)
	if err != nil {
		return err
	}
	log.Printf("📦 Ozon: отправление %s передано на отгрузку (%d позиций)", req.ShipmentID, len(req.Items))
	return nil
}

// AttachMarking загружает экземпляры (коды маркировки) для позиции отправления
func (c *OzonClient) AttachMarking(ctx context.Context, req AttachMarkingRequest) error {
	exemplars := make([]map[string]interface{}, 0, len(req.Codes))
	for _, code := range req.Codes {
		exemplars = append(exemplars, map[string]interface{}{"gtd": "", "mandatory_mark": code})
	}

	payload := map[string]interface{}{
		"posting_number": req.ShipmentID,
		"products": []map[string]interface{}{
			{
				"product_id": req.SKU,
				"exemplars":  exemplars,
			},
		},
	}

	_, err := c.doRequest(ctx, "/v5/fbs/posting/product/exemplar/set", payload)
	return err
}

// GetLabel загружает этикетку отправления (PDF)
func (c *OzonClient) GetLabel(ctx context.Context, postingNumber string) ([]byte, error) {
	payload := map[string]interface{}{
		"posting_number": []string{postingNumber},
	}

	data, err := c.doRequest(ctx, "/v2/posting/fbs/package-label", payload)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("Ozon returned empty label for posting %s", postingNumber)
	}
	return data, nil
}

// CreateSupply создает акт отгрузки (аналог поставки WB)
func (c *OzonClient) CreateSupply(ctx context.Context, name string) (string, error) {
	payload := map[string]interface{}{
		"containers_count": 1,
	}

	data, err := c.doRequest(ctx, "/v2/posting/fbs/act/create", payload)
	if err != nil {
		return "", err
	}

	var parsed struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to unmarshal Ozon act: %w", err)
	}

	log.Printf("🚚 Ozon: создан акт отгрузки %d (%s)", parsed.ID, name)
	return fmt.Sprintf("%d", parsed.ID), nil
}

// ListSupplies загружает незакрытые акты отгрузки
func (c *OzonClient) ListSupplies(ctx context.Context) ([]Supply, error) {
	payload := map[string]interface{}{
		"filter": map[string]interface{}{
			"date_from": time.Now().AddDate(0, 0, -30).UTC().Format("2006-01-02"),
			"date_to":   time.Now().UTC().Format("2006-01-02"),
		},
		"limit": 100,
	}

	data, err := c.doRequest(ctx, "/v2/posting/fbs/act/list", payload)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Result []struct {
			ID     int64  `json:"id"`
			Status string `json:"act_status"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Ozon act list: %w", err)
	}

	var supplies []Supply
	for _, act := range parsed.Result {
		if act.Status == "closed" {
			continue
		}
		supplies = append(supplies, Supply{ID: fmt.Sprintf("%d", act.ID)})
	}
	return supplies, nil
}

// AttachToSupply для Ozon не требует отдельного вызова: отгруженные
// отправления попадают в открытый акт автоматически
func (c *OzonClient) AttachToSupply(ctx context.Context, orderID, supplyID string) error {
	return nil
}

// CloseSupply подтверждает отгрузку перевозки по акту
func (c *OzonClient) CloseSupply(ctx context.Context, supplyID string) error {
	payload := map[string]interface{}{
		"id": supplyID,
	}
	if _, err := c.doRequest(ctx, "/v1/carriage/approve", payload); err != nil {
		return err
	}
	log.Printf("🚚 Ozon: перевозка %s подтверждена", supplyID)
	return nil
}

// OzonAdapter адаптер Ozon для общего конвейера сборки
type OzonAdapter struct {
	*OzonClient
}

// NewOzonAdapter создает адаптер Ozon
func NewOzonAdapter(client *OzonClient) *OzonAdapter {
	return &OzonAdapter{OzonClient: client}
}

func (a *OzonAdapter) Name() string { return NameOzon }

func (a *OzonAdapter) RowKey(r *ordertable.Row) string { return RowKeyOzon(r) }

func (a *OzonAdapter) SyncID(r *ordertable.Row) string { return r.ShipmentID }

func (a *OzonAdapter) AwaitingStatus() string { return "awaiting_deliver" }

func (a *OzonAdapter) LabelFormat() string { return "pdf" }

func (a *OzonAdapter) Terminal() map[string]bool { return ordertable.TerminalStatuses() }

func (a *OzonAdapter) RequiresSupply() bool { return false }
