package marketplace

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"packmate/server/internal/ordertable"
)

// WBClient клиент для Wildberries Marketplace API (FBS).
// Модель WB заказ-центричная: одно сборочное задание = одна строка.
type WBClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewWBClient создает клиент WB с ограниченным таймаутом на запрос
func NewWBClient(baseURL, token string, timeout time.Duration) *WBClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WBClient{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// wbOrder сборочное задание в ответе WB
type wbOrder struct {
	ID           int64    `json:"id"`
	Article      string   `json:"article"`
	Price        int64    `json:"price"`          // Цена в копейках
	SalePrice    int64    `json:"convertedPrice"` // Цена со скидкой в копейках
	Skus         []string `json:"skus"`           // Штрихкоды WB
	ChrtID       int64    `json:"chrtId"`
	NmID         int64    `json:"nmId"`
	CreatedAt    string   `json:"createdAt"`
	DeliveryType string   `json:"deliveryType"` // 'fbs' | 'express'
}

type wbNewOrdersResponse struct {
	Orders []wbOrder `json:"orders"`
}

type wbStatusesResponse struct {
	Orders []struct {
		ID             int64  `json:"id"`
		SupplierStatus string `json:"supplierStatus"`
		WBStatus       string `json:"wbStatus"`
	} `json:"orders"`
}

type wbSuppliesResponse struct {
	Supplies []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Done bool   `json:"done"`
	} `json:"supplies"`
	Next int64 `json:"next"`
}

type wbStickersResponse struct {
	Stickers []struct {
		OrderID int64  `json:"orderId"`
		File    string `json:"file"` // base64 PNG
	} `json:"stickers"`
}

// doRequest выполняет запрос к API WB с авторизацией и разбором статуса.
// 409 транслируется в ErrAlreadyAttached, 404 — в ErrNotFound
func (c *WBClient) doRequest(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("WB API request failed: %w", err)
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
		return nil, fmt.Errorf("WB API error (status %d) %s %s: %s", resp.StatusCode, method, path, string(respBody))
	}
	return respBody, nil
}

// ListOrders загружает новые сборочные задания
func (c *WBClient) ListOrders(ctx context.Context) ([]RemoteOrder, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/api/v3/orders/new", nil)
	if err != nil {
		return nil, err
	}

	var parsed wbNewOrdersResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal WB orders: %w", err)
	}

	orders := make([]RemoteOrder, 0, len(parsed.Orders))
	for _, o := range parsed.Orders {
		createdAt, _ := time.Parse(time.RFC3339, o.CreatedAt)
		price := o.SalePrice
		if price == 0 {
			price = o.Price
		}
		order := RemoteOrder{
			OrderID:       strconv.FormatInt(o.ID, 10),
			VendorArticle: o.Article,
			SKU:           o.NmID,
			Quantity:      1, // Сборочное задание WB всегда на одну единицу
			Price:         decimal.New(price, -2),
			Status:        "new",
			IsExpress:     o.DeliveryType == "express",
			Barcodes:      o.Skus,
			CreatedAt:     createdAt,
		}
		orders = append(orders, order)
	}

	log.Printf("📦 WB: загружено %d новых сборочных заданий", len(orders))
	return orders, nil
}

// GetStatuses запрашивает статусы партии заказов.
// WB принимает не больше 1000 id за вызов, чанкование делает вызывающий
func (c *WBClient) GetStatuses(ctx context.Context, orderIDs []string) (map[string]StatusInfo, error) {
	ids := make([]int64, 0, len(orderIDs))
	for _, s := range orderIDs {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid WB order id %q: %w", s, err)
		}
		ids = append(ids, id)
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/api/v3/orders/status", map[string]interface{}{"orders": ids})
	if err != nil {
		return nil, err
	}

	var parsed wbStatusesResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal WB statuses: %w", err)
	}

	result := make(map[string]StatusInfo, len(parsed.Orders))
	for _, o := range parsed.Orders {
		result[strconv.FormatInt(o.ID, 10)] = StatusInfo{
			Status:    o.SupplierStatus,
			SubStatus: o.WBStatus,
		}
	}
	return result, nil
}

// Finalize для WB — прикрепление заказа к поставке. После прикрепления
// заказ считается подтвержденным (статус confirm)
func (c *WBClient) Finalize(ctx context.Context, req FinalizeRequest) error {
	if req.SupplyID == "" {
		return fmt.Errorf("WB finalize requires a supply id")
	}
	return c.AttachToSupply(ctx, req.OrderID, req.SupplyID)
}

// AttachMarking прикрепляет коды маркировки (СГТИН) к сборочному заданию.
// 409 означает, что коды уже прикреплены — для нас это успех
func (c *WBClient) AttachMarking(ctx context.Context, req AttachMarkingRequest) error {
	path := fmt.Sprintf("/api/v3/orders/%s/meta/sgtin", req.OrderID)
	_, err := c.doRequest(ctx, http.MethodPut, path, map[string]interface{}{"sgtins": req.Codes})
	return err
}

// GetLabel загружает этикетку (стикер) сборочного задания в PNG
func (c *WBClient) GetLabel(ctx context.Context, orderID string) ([]byte, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid WB order id %q: %w", orderID, err)
	}

	path := "/api/v3/orders/stickers?type=png&width=58&height=40"
	data, err := c.doRequest(ctx, http.MethodPost, path, map[string]interface{}{"orders": []int64{id}})
	if err != nil {
		return nil, err
	}

	var parsed wbStickersResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal WB stickers: %w", err)
	}
	if len(parsed.Stickers) == 0 {
		return nil, fmt.Errorf("WB returned no sticker for order %s", orderID)
	}

	label, err := base64.StdEncoding.DecodeString(parsed.Stickers[0].File)
	if err != nil {
		return nil, fmt.Errorf("failed to decode WB sticker: %w", err)
	}
	return label, nil
}

// CreateSupply создает новую поставку и возвращает ее id
func (c *WBClient) CreateSupply(ctx context.Context, name string) (string, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "/api/v3/supplies", map[string]string{"name": name})
	if err != nil {
		return "", err
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to unmarshal WB supply: %w", err)
	}

	log.Printf("🚚 WB: создана поставка %s (%s)", parsed.ID, name)
	return parsed.ID, nil
}

// Лимиты пагинации списка поставок: страница и жесткий потолок на общее
// число загруженных, чтобы ограничить худшую задержку
const (
	wbSuppliesPageLimit = 100
	wbSuppliesMaxTotal  = 1000
)

// ListSupplies загружает открытые поставки с курсорной пагинацией
func (c *WBClient) ListSupplies(ctx context.Context) ([]Supply, error) {
	var supplies []Supply
	next := int64(0)

	for len(supplies) < wbSuppliesMaxTotal {
		path := fmt.Sprintf("/api/v3/supplies?limit=%d&next=%d", wbSuppliesPageLimit, next)
		data, err := c.doRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}

		var parsed wbSuppliesResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("failed to unmarshal WB supplies: %w", err)
		}

		for _, s := range parsed.Supplies {
			if s.Done {
				continue
			}
			supplies = append(supplies, Supply{ID: s.ID, Name: s.Name})
		}

		if len(parsed.Supplies) < wbSuppliesPageLimit || parsed.Next == 0 {
			break
		}
		next = parsed.Next
	}

	return supplies, nil
}

// AttachToSupply прикрепляет заказ к поставке. 409 — заказ уже в поставке,
// считается успехом
func (c *WBClient) AttachToSupply(ctx context.Context, orderID, supplyID string) error {
	path := fmt.Sprintf("/api/v3/supplies/%s/orders/%s", supplyID, orderID)
	_, err := c.doRequest(ctx, http.MethodPatch, path, nil)
	return err
}

// CloseSupply передает поставку в доставку. Переход необратим:
// после закрытия прикрепление заказов невозможно
func (c *WBClient) CloseSupply(ctx context.Context, supplyID string) error {
	path := fmt.Sprintf("/api/v3/supplies/%s/deliver", supplyID)
	if _, err := c.doRequest(ctx, http.MethodPatch, path, nil); err != nil {
		return err
	}
	log.Printf("🚚 WB: поставка %s передана в доставку", supplyID)
	return nil
}

// WBAdapter адаптер WB для общего конвейера сборки
type WBAdapter struct {
	*WBClient
}

// NewWBAdapter создает адаптер WB
func NewWBAdapter(client *WBClient) *WBAdapter {
	return &WBAdapter{WBClient: client}
}

func (a *WBAdapter) Name() string { return NameWB }

func (a *WBAdapter) RowKey(r *ordertable.Row) string { return RowKeyWB(r) }

func (a *WBAdapter) SyncID(r *ordertable.Row) string { return r.OrderID }

func (a *WBAdapter) AwaitingStatus() string { return "confirm" }

func (a *WBAdapter) LabelFormat() string { return "png" }

func (a *WBAdapter) Terminal() map[string]bool { return ordertable.TerminalStatuses() }

func (a *WBAdapter) RequiresSupply() bool { return true }
