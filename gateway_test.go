package sanalpos_soap

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
)

// Shared merchant fixture. The values feed the fixed signature vectors in
// sign_test.go, so the fake gateway can verify real signatures end to end.
const (
	testClientCode = "10738"
	testUsername   = "api_user"
	testPassword   = "api_pass"
	testGUID       = "0c13d406-873b-403b-9c09-a5766840d98c"
	testSuccessURL = "https://shop.example.com/pay/ok"
	testErrorURL   = "https://shop.example.com/pay/fail"
)

func testConfig(baseURL string) Config {
	return Config{
		ClientCode: testClientCode,
		Username:   testUsername,
		Password:   testPassword,
		GUID:       testGUID,
		SuccessURL: testSuccessURL,
		ErrorURL:   testErrorURL,
		BaseURL:    baseURL,
		Timeout:    2 * time.Second,
	}
}

// fakeGateway is an in-process SOAP gateway. It answers WSDL probes, keeps
// vault and 3-D Secure state across calls, verifies request signatures, and
// lets individual tests override any operation with a custom handler.
type fakeGateway struct {
	t   *testing.T
	srv *httptest.Server

	mu          sync.Mutex
	wsdlFetches map[string]int
	callCounts  map[string]int
	handlers    map[string]func(op *etree.Element) string
	vault       map[string]string // token -> display name
	mdTokens    map[string]string // order id -> MD token
}

func newFakeGateway(t *testing.T) *fakeGateway {
	g := &fakeGateway{
		t:           t,
		wsdlFetches: make(map[string]int),
		callCounts:  make(map[string]int),
		handlers:    make(map[string]func(op *etree.Element) string),
		vault:       make(map[string]string),
		mdTokens:    make(map[string]string),
	}
	g.srv = httptest.NewServer(http.HandlerFunc(g.handle))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *fakeGateway) url() string {
	return g.srv.URL
}

// stub overrides the handler for one operation. The returned string becomes
// the inner content of the <OpResult> element.
func (g *fakeGateway) stub(op string, fn func(op *etree.Element) string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers[op] = fn
}

func (g *fakeGateway) calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.callCounts[op]
}

func (g *fakeGateway) wsdlCount(path string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.wsdlFetches[path]
}

// issuedMD returns the continuation token the gateway issued for an order
// during 3-D Secure initiation, mirroring what the bank posts back to the
// merchant's callback URL.
func (g *fakeGateway) issuedMD(orderID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mdTokens[orderID]
}

func (g *fakeGateway) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && r.URL.RawQuery == "wsdl" {
		g.mu.Lock()
		g.wsdlFetches[r.URL.Path]++
		g.mu.Unlock()
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		fmt.Fprintf(w, `<definitions><service><port><address location=%q/></port></service></definitions>`,
			g.srv.URL+r.URL.Path)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		http.Error(w, "bad xml", http.StatusBadRequest)
		return
	}
	opEl := firstBodyElement(doc)
	if opEl == nil {
		http.Error(w, "empty body", http.StatusBadRequest)
		return
	}
	opName := localName(opEl.Tag)

	// Every request must carry the merchant credential block; the client
	// injects it immediately before transmission.
	auth := findChildLocal(opEl, "G")
	if auth == nil || childText(auth, "CLIENT_CODE") != testClientCode ||
		childText(auth, "CLIENT_USERNAME") != testUsername ||
		childText(auth, "CLIENT_PASSWORD") != testPassword {
		g.respond(w, opName, `<Code>-10</Code><Message>invalid credentials</Message>`)
		return
	}

	g.mu.Lock()
	g.callCounts[opName]++
	handler := g.handlers[opName]
	g.mu.Unlock()

	if handler == nil {
		handler = g.defaultHandler(opName)
	}
	g.respond(w, opName, handler(opEl))
}

func (g *fakeGateway) respond(w http.ResponseWriter, opName, inner string) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <%[1]sResponse xmlns="https://pos.sanalodeme.com.tr/ws/">
      <%[1]sResult>%[2]s</%[1]sResult>
    </%[1]sResponse>
  </soap:Body>
</soap:Envelope>`, opName, inner)
}

func (g *fakeGateway) defaultHandler(opName string) func(op *etree.Element) string {
	switch opName {
	case "Sale":
		return g.handleSale
	case "Complete3D":
		return g.handleComplete3D
	case "StoreCard":
		return g.handleStoreCard
	case "ChargeCard":
		return g.handleChargeCard
	case "DeleteCard":
		return g.handleDeleteCard
	case "ListCards":
		return g.handleListCards
	default:
		return func(*etree.Element) string {
			return `<Code>1</Code><Message>OK</Message>`
		}
	}
}

// handleSale verifies the request MAC against the transmitted fields before
// approving, the way the real gateway does.
func (g *fakeGateway) handleSale(op *etree.Element) string {
	orderID := childText(op, "OrderID")
	amount := childText(op, "Amount")
	total := childText(op, "Total")
	mode := childText(op, "SecurityMode")

	var expected string
	var err error
	if mode == "3D" {
		expected, err = signFields("Sale", testClientCode, testGUID, amount, total, orderID,
			testErrorURL, testSuccessURL)
	} else {
		expected, err = signFields("Sale", testClientCode, testGUID, amount, total, orderID)
	}
	if err != nil || childText(op, "Signature") != expected {
		return `<Code>-5</Code><Message>signature mismatch</Message>`
	}

	if mode == "3D" {
		md := "md-" + uuid.NewString()
		g.mu.Lock()
		g.mdTokens[orderID] = md
		g.mu.Unlock()
		return fmt.Sprintf(`<Code>1</Code><Message>redirect required</Message><MD>%s</MD><RedirectURL>%s</RedirectURL>`,
			md, g.srv.URL+"/acs")
	}
	return fmt.Sprintf(`<Code>100200300</Code><Message>approved</Message><TransactionRef>100200300</TransactionRef><OrderRef>S-%s</OrderRef>`, orderID)
}

func (g *fakeGateway) handleComplete3D(op *etree.Element) string {
	orderID := childText(op, "OrderID")
	md := childText(op, "MD")

	g.mu.Lock()
	issued, ok := g.mdTokens[orderID]
	if ok && issued == md {
		delete(g.mdTokens, orderID)
	}
	g.mu.Unlock()

	if !ok || issued != md {
		return `<Code>-4</Code><Message>authentication not verified</Message>`
	}
	return fmt.Sprintf(`<Code>100200301</Code><Message>approved</Message><TransactionRef>100200301</TransactionRef><OrderRef>S-%s</OrderRef>`, orderID)
}

func (g *fakeGateway) handleStoreCard(op *etree.Element) string {
	number := childText(op, "CardNumber")
	token := uuid.NewString()

	g.mu.Lock()
	g.vault[token] = childText(op, "DisplayName")
	g.mu.Unlock()

	masked := number[:6] + strings.Repeat("*", len(number)-10) + number[len(number)-4:]
	return fmt.Sprintf(`<Code>1</Code><Message>stored</Message><Token>%s</Token><MaskedNumber>%s</MaskedNumber>`, token, masked)
}

func (g *fakeGateway) handleChargeCard(op *etree.Element) string {
	token := childText(op, "Token")

	g.mu.Lock()
	_, ok := g.vault[token]
	g.mu.Unlock()

	if !ok {
		return `<Code>-101</Code><Message>token not found</Message>`
	}
	return fmt.Sprintf(`<Code>100200302</Code><Message>approved</Message><TransactionRef>100200302</TransactionRef><OrderRef>S-%s</OrderRef>`,
		childText(op, "OrderID"))
}

func (g *fakeGateway) handleDeleteCard(op *etree.Element) string {
	token := childText(op, "Token")

	g.mu.Lock()
	_, ok := g.vault[token]
	delete(g.vault, token)
	g.mu.Unlock()

	if !ok {
		return `<Code>-101</Code><Message>token not found</Message>`
	}
	return `<Code>1</Code><Message>deleted</Message>`
}

func (g *fakeGateway) handleListCards(op *etree.Element) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var b strings.Builder
	b.WriteString(`<Code>1</Code><Message>OK</Message><Cards>`)
	for token, name := range g.vault {
		fmt.Fprintf(&b, `<Card><Token>%s</Token><DisplayName>%s</DisplayName><MaskedNumber>450803******4509</MaskedNumber></Card>`, token, name)
	}
	b.WriteString(`</Cards>`)
	return b.String()
}

func firstBodyElement(doc *etree.Document) *etree.Element {
	root := doc.Root()
	if root == nil {
		return nil
	}
	body := findChildLocal(root, "Body")
	if body == nil {
		return nil
	}
	for _, child := range body.ChildElements() {
		return child
	}
	return nil
}
