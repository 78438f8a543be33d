package httppresentation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	appauth "github.com/storefront-go/storefront/internal/application/auth"
	appcatalog "github.com/storefront-go/storefront/internal/application/catalog"
	appcheckout "github.com/storefront-go/storefront/internal/application/checkout"
	apporder "github.com/storefront-go/storefront/internal/application/order"
	domcatalog "github.com/storefront-go/storefront/internal/domain/catalog"
	domorder "github.com/storefront-go/storefront/internal/domain/order"
	dompayment "github.com/storefront-go/storefront/internal/domain/payment"
	"github.com/storefront-go/storefront/internal/domain/reconciliation"
	"github.com/storefront-go/storefront/internal/observability"
)

const componentHTTPHandler = "http_server"

type Handler struct {
	checkout *appcheckout.Service
	catalog  *appcatalog.Service
	orders   *apporder.Service
	auth     *appauth.Service
	journal  reconciliation.Journal
	limiter  RateLimiter

	// AllowSelfIssue exposes POST /auth/token for development setups with no
	// identity provider in front.
	allowSelfIssue bool

	log          observability.Logger
	httpRequests observability.Counter
	httpDuration observability.Histogram
	rateLimited  observability.Counter
}

func NewHandler(
	checkoutSvc *appcheckout.Service,
	catalogSvc *appcatalog.Service,
	orderSvc *apporder.Service,
	authSvc *appauth.Service,
	journal reconciliation.Journal,
	limiter RateLimiter,
	allowSelfIssue bool,
	tel observability.Observability,
) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()
	return &Handler{
		checkout:       checkoutSvc,
		catalog:        catalogSvc,
		orders:         orderSvc,
		auth:           authSvc,
		journal:        journal,
		limiter:        limiter,
		allowSelfIssue: allowSelfIssue,
		log:            tel.Logger().With(observability.F("component", componentHTTPHandler)),
		httpRequests:   metrics.Counter(observability.MHTTPRequests),
		httpDuration:   metrics.Histogram(observability.MHTTPRequestDuration),
		rateLimited:    metrics.Counter(observability.MRateLimited),
	}
}

type routePolicy struct {
	public    bool
	adminOnly bool
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.handleHealth)
	if h.allowSelfIssue {
		h.handle(mux, "POST /auth/token", h.handleIssueToken, routePolicy{public: true})
	}

	h.handle(mux, "GET /products", h.handleListProducts, routePolicy{public: true})
	h.handle(mux, "GET /products/{id}", h.handleGetProduct, routePolicy{public: true})
	h.handle(mux, "POST /products", h.handleCreateProduct, routePolicy{adminOnly: true})

	h.handle(mux, "POST /orders", h.handlePlaceOrder, routePolicy{})
	h.handle(mux, "GET /orders", h.handleListOrders, routePolicy{})
	h.handle(mux, "GET /orders/{id}", h.handleGetOrder, routePolicy{})
	h.handle(mux, "PATCH /orders/{id}/status", h.handleUpdateOrderStatus, routePolicy{adminOnly: true})

	h.handle(mux, "GET /admin/reconciliations", h.handleListReconciliations, routePolicy{adminOnly: true})
	h.handle(mux, "POST /admin/reconciliations/{id}/resolve", h.handleResolveReconciliation, routePolicy{adminOnly: true})

	return mux
}

// handle wires one route through the middleware chain:
// Trace → Request logger → HTTP metrics → Access log → Auth → Rate limit → Handler
func (h *Handler) handle(mux *http.ServeMux, pattern string, handler http.HandlerFunc, policy routePolicy) {
	wrapped := h.withRateLimit(handler)
	if !policy.public {
		wrapped = h.withAuth(policy.adminOnly, wrapped)
	}
	wrapped = h.withTrace(
		h.withRequestLogger(
			h.withHTTPMetrics(
				h.withAccessLog(wrapped),
			),
		),
	)
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(contextWithRoute(r.Context(), pattern))
		wrapped.ServeHTTP(w, r)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type issueTokenRequest struct {
	Subject string `json:"subject"`
	Role    string `json:"role"`
}

func (h *Handler) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	token, err := h.auth.Issue(req.Subject, req.Role)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type createProductRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Stock       int    `json:"stock"`
	Category    string `json:"category"`
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	product, err := h.catalog.CreateProduct(r.Context(), appcatalog.CreateProductInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		Category:    req.Category,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.catalog.ListProducts(r.Context(), domcatalog.ListFilter{
		Category: q.Get("category"),
		Page:     intQuery(q.Get("page")),
		PerPage:  intQuery(q.Get("per_page")),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	products := make([]productResponse, 0, len(result.Products))
	for _, p := range result.Products {
		products = append(products, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, listProductsResponse{
		Products: products,
		Total:    result.Total,
		Page:     result.Page,
		PerPage:  result.PerPage,
	})
}

type placeOrderRequest struct {
	Items []struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
	PaymentMethod string                   `json:"payment_method"`
	Shipping      domorder.ShippingAddress `json:"shipping_address"`
}

func (h *Handler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing principal")
		return
	}

	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	items := make([]appcheckout.CartItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, appcheckout.CartItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	result, err := h.checkout.PlaceOrder(r.Context(), appcheckout.PlaceOrderInput{
		BuyerID:       principal.Subject,
		Items:         items,
		PaymentMethod: req.PaymentMethod,
		Shipping:      req.Shipping,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(result.Order))
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())

	// Admins may read any order; buyers only their own.
	buyerScope := principal.Subject
	if principal.IsAdmin() {
		buyerScope = ""
	}
	ord, err := h.orders.Get(r.Context(), r.PathValue("id"), buyerScope)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(ord))
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	q := r.URL.Query()

	buyerID := principal.Subject
	if principal.IsAdmin() {
		buyerID = q.Get("buyer_id")
	}

	result, err := h.orders.List(r.Context(), domorder.ListFilter{
		BuyerID: buyerID,
		Status:  domorder.Status(q.Get("status")),
		Page: domorder.Page{
			Number:  intQuery(q.Get("page")),
			PerPage: intQuery(q.Get("per_page")),
		},
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	orders := make([]orderResponse, 0, len(result.Orders))
	for _, o := range result.Orders {
		orders = append(orders, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, listOrdersResponse{
		Orders:  orders,
		Total:   result.Total,
		Page:    result.Page,
		PerPage: result.PerPage,
	})
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateOrderStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	ord, err := h.orders.UpdateStatus(r.Context(), r.PathValue("id"), domorder.Status(req.Status))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(ord))
}

func (h *Handler) handleListReconciliations(w http.ResponseWriter, r *http.Request) {
	entries, err := h.journal.ListOpen(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]reconciliationResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toReconciliationResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (h *Handler) handleResolveReconciliation(w http.ResponseWriter, r *http.Request) {
	if err := h.journal.Resolve(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

// writeDomainError maps the checkout and domain error taxonomy onto HTTP.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		notFound *appcheckout.ProductNotFoundError
		noStock  *appcheckout.InsufficientStockError
		declined *appcheckout.PaymentDeclinedError
		gateway  *appcheckout.GatewayUnavailableError
		recon    *appcheckout.ReconciliationRequiredError
	)

	switch {
	case errors.As(err, &notFound),
		errors.Is(err, domcatalog.ErrNotFound),
		errors.Is(err, domorder.ErrNotFound),
		errors.Is(err, reconciliation.ErrNotFound):
		writeErrorCode(w, http.StatusNotFound, "NOT_FOUND", err.Error())

	case errors.As(err, &noStock):
		writeErrorCode(w, http.StatusConflict, "INSUFFICIENT_STOCK", err.Error())

	case errors.As(err, &declined):
		writeErrorCode(w, http.StatusPaymentRequired, "PAYMENT_DECLINED", err.Error())

	case errors.As(err, &gateway):
		w.Header().Set("Retry-After", "5")
		writeErrorCode(w, http.StatusServiceUnavailable, "GATEWAY_UNAVAILABLE", err.Error())

	case errors.Is(err, appcheckout.ErrPersistenceConflict):
		w.Header().Set("Retry-After", "1")
		writeErrorCode(w, http.StatusConflict, "PERSISTENCE_CONFLICT", err.Error())

	case errors.As(err, &recon):
		writeErrorCode(w, http.StatusInternalServerError, "RECONCILIATION_REQUIRED", err.Error())

	case errors.Is(err, domorder.ErrInvalidStateTransition):
		writeErrorCode(w, http.StatusConflict, "INVALID_STATE_TRANSITION", err.Error())

	case errors.Is(err, appcheckout.ErrInvalidQuantity),
		errors.Is(err, appcheckout.ErrNoItems),
		errors.Is(err, domorder.ErrInvalidQuantity),
		errors.Is(err, domorder.ErrNoItems),
		errors.Is(err, domorder.ErrInvalidBuyer),
		errors.Is(err, domorder.ErrInvalidAddress),
		errors.Is(err, domcatalog.ErrInvalidName),
		errors.Is(err, domcatalog.ErrInvalidPrice),
		errors.Is(err, domcatalog.ErrInvalidStock),
		errors.Is(err, domcatalog.ErrInvalidQuantity),
		errors.Is(err, dompayment.ErrUnsupportedMethod):
		writeErrorCode(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())

	default:
		writeErrorCode(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func intQuery(raw string) int {
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return v
}
