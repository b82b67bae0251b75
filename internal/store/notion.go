package store

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/traderelay/internal/domain"
	"github.com/betbot/traderelay/pkg/httpclient"
)

const (
	DefaultNotionBaseURL = "https://api.notion.com"
	notionVersion        = "2022-06-28"
)

// Notion database property names.
const (
	propOrderID   = "Order ID"
	propAction    = "Action"
	propType      = "Type"
	propSymbol    = "Symbol"
	propVolume    = "Volume"
	propPrice     = "Price"
	propSL        = "SL"
	propTP        = "TP"
	propProfit    = "Profit"
	propBalance   = "Balance"
	propOutprice  = "Outprice"
	propMessageID = "Message ID"
	propClosed    = "Closed"
)

type NotionConfig struct {
	BaseURL    string
	APIKey     string
	DatabaseID string
	Timeout    time.Duration
}

// NotionStore keeps one page per order in a Notion database. The page id is
// the record handle. A record is closed when its Action select reads "close".
type NotionStore struct {
	http       *httpclient.Client
	databaseID string
}

func NewNotionStore(cfg NotionConfig) (*NotionStore, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.DatabaseID) == "" {
		return nil, errors.New("notion: api key and database id are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultNotionBaseURL
	}
	c := httpclient.NewClient(cfg.BaseURL, httpclient.Options{
		Timeout:    cfg.Timeout,
		RetryCount: 2,
		Headers: map[string]string{
			"Authorization":  "Bearer " + cfg.APIKey,
			"Notion-Version": notionVersion,
		},
	})
	return &NotionStore{http: c, databaseID: cfg.DatabaseID}, nil
}

type notionPage struct {
	ID         string                    `json:"id"`
	Properties map[string]notionProperty `json:"properties"`
}

type notionProperty struct {
	Type   string           `json:"type"`
	Number *decimal.Decimal `json:"number"`
	Select *struct {
		Name string `json:"name"`
	} `json:"select"`
	Title []struct {
		PlainText string `json:"plain_text"`
	} `json:"title"`
	Checkbox *bool `json:"checkbox"`
}

type notionQueryResult struct {
	Results []notionPage `json:"results"`
}

func (s *NotionStore) FindByOrderID(ctx context.Context, orderID int64) (domain.Order, error) {
	body := map[string]any{
		"filter": map[string]any{
			"property": propOrderID,
			"number":   map[string]any{"equals": orderID},
		},
		"page_size": 1,
	}
	var out notionQueryResult
	resp, err := s.http.DoRequest(ctx, http.MethodPost, "/v1/databases/"+s.databaseID+"/query",
		&httpclient.RequestOptions{Data: body}, &out)
	if err := httpclient.CheckResponse(resp, err); err != nil {
		return domain.Order{}, lookupError("notion: query", err)
	}
	if len(out.Results) == 0 {
		return domain.Order{}, ErrRecordNotFound
	}
	return out.Results[0].order(), nil
}

func (p notionPage) order() domain.Order {
	num := func(name string) decimal.Decimal {
		if prop, ok := p.Properties[name]; ok && prop.Number != nil {
			return *prop.Number
		}
		return decimal.Zero
	}
	nullNum := func(name string) decimal.NullDecimal {
		if prop, ok := p.Properties[name]; ok && prop.Number != nil {
			return decimal.NewNullDecimal(*prop.Number)
		}
		return decimal.NullDecimal{}
	}
	sel := func(name string) string {
		if prop, ok := p.Properties[name]; ok && prop.Select != nil {
			return prop.Select.Name
		}
		return ""
	}

	o := domain.Order{
		OrderID:      num(propOrderID).IntPart(),
		Action:       domain.Action(sel(propAction)),
		Direction:    domain.Direction(sel(propType)),
		Volume:       num(propVolume),
		OpenPrice:    num(propPrice),
		StopLoss:     nullNum(propSL),
		TakeProfit:   nullNum(propTP),
		ClosePrice:   nullNum(propOutprice),
		Profit:       nullNum(propProfit),
		Balance:      num(propBalance),
		RecordHandle: p.ID,
	}
	// pages written before the Closed column existed only carry the action
	o.Closed = o.Action == domain.ActionClose
	if c, ok := p.Properties[propClosed]; ok && c.Checkbox != nil && *c.Checkbox {
		o.Closed = true
	}
	if title, ok := p.Properties[propSymbol]; ok {
		var sb strings.Builder
		for _, t := range title.Title {
			sb.WriteString(t.PlainText)
		}
		o.Symbol = sb.String()
	}
	if mid, ok := p.Properties[propMessageID]; ok && mid.Number != nil && !mid.Number.IsZero() {
		o.NotificationHandle = mid.Number.String()
	}
	return o
}

func numberProp(d decimal.Decimal) map[string]any {
	// Notion wants a bare JSON number; decimal.Decimal marshals as a string.
	return map[string]any{"number": json.RawMessage(d.String())}
}

func selectProp(name string) map[string]any {
	return map[string]any{"select": map[string]any{"name": name}}
}

func messageIDProp(handle string) (map[string]any, error) {
	if handle == "" {
		return map[string]any{"number": nil}, nil
	}
	id, err := strconv.ParseInt(handle, 10, 64)
	if err != nil {
		return nil, errors.Errorf("notification handle %q is not a message id", handle)
	}
	return map[string]any{"number": id}, nil
}

func (s *NotionStore) Create(ctx context.Context, order domain.Order) (string, error) {
	props := map[string]any{
		propOrderID: map[string]any{"number": order.OrderID},
		propAction:  selectProp(string(order.Action)),
		propSymbol: map[string]any{
			"title": []any{map[string]any{"text": map[string]any{"content": order.Symbol}}},
		},
		propVolume:  numberProp(order.Volume),
		propPrice:   numberProp(order.OpenPrice),
		propBalance: numberProp(order.Balance),
		propClosed:  map[string]any{"checkbox": order.Closed},
	}
	if order.Direction != "" {
		props[propType] = selectProp(string(order.Direction))
	}
	for name, v := range map[string]decimal.NullDecimal{
		propSL:       order.StopLoss,
		propTP:       order.TakeProfit,
		propProfit:   order.Profit,
		propOutprice: order.ClosePrice,
	} {
		if v.Valid {
			props[name] = numberProp(v.Decimal)
		}
	}
	mid, err := messageIDProp(order.NotificationHandle)
	if err != nil {
		return "", writeError("notion: create", err)
	}
	props[propMessageID] = mid

	body := map[string]any{
		"parent":     map[string]any{"database_id": s.databaseID},
		"properties": props,
	}
	var page notionPage
	resp, err := s.http.DoRequest(ctx, http.MethodPost, "/v1/pages", &httpclient.RequestOptions{Data: body}, &page)
	if err := httpclient.CheckResponse(resp, err); err != nil {
		return "", writeError("notion: create", err)
	}
	if page.ID == "" {
		return "", writeError("notion: create", errors.New("response carried no page id"))
	}
	return page.ID, nil
}

func (s *NotionStore) Update(ctx context.Context, recordHandle string, changes domain.Changes) error {
	if recordHandle == "" {
		return writeError("notion: update", errors.New("empty record handle"))
	}
	props := map[string]any{}
	if changes.Action != nil {
		props[propAction] = selectProp(string(*changes.Action))
	}
	if changes.Direction != nil {
		props[propType] = selectProp(string(*changes.Direction))
	}
	if changes.Symbol != nil {
		props[propSymbol] = map[string]any{
			"title": []any{map[string]any{"text": map[string]any{"content": *changes.Symbol}}},
		}
	}
	for name, v := range map[string]*decimal.Decimal{
		propVolume:   changes.Volume,
		propPrice:    changes.OpenPrice,
		propSL:       changes.StopLoss,
		propTP:       changes.TakeProfit,
		propOutprice: changes.ClosePrice,
		propProfit:   changes.Profit,
		propBalance:  changes.Balance,
	} {
		if v != nil {
			props[name] = numberProp(*v)
		}
	}
	if changes.Closed != nil {
		props[propClosed] = map[string]any{"checkbox": *changes.Closed}
	}
	if changes.NotificationHandle != nil {
		mid, err := messageIDProp(*changes.NotificationHandle)
		if err != nil {
			return writeError("notion: update", err)
		}
		props[propMessageID] = mid
	}
	if len(props) == 0 {
		return nil
	}

	resp, err := s.http.DoRequest(ctx, http.MethodPatch, "/v1/pages/"+recordHandle,
		&httpclient.RequestOptions{Data: map[string]any{"properties": props}}, nil)
	if err := httpclient.CheckResponse(resp, err); err != nil {
		return writeError("notion: update", err)
	}
	return nil
}

func (s *NotionStore) Close() error { return nil }
