package sanalpos_soap

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"
)

const (
	soapNS = "http://schemas.xmlsoap.org/soap/envelope/"
	tnsNS  = "https://pos.sanalodeme.com.tr/ws/"
)

// ============================================
// SOAP Request Structures (internal marshaling)
// ============================================

type soapEnvelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	SoapNS  string   `xml:"xmlns:soap,attr"`
	TnsNS   string   `xml:"xmlns:tns,attr"`
	Header  string   `xml:"soap:Header"`
	Body    soapBody `xml:"soap:Body"`
}

type soapBody struct {
	// Op is one of the wire* operation structs; the element name comes
	// from the struct's XMLName field.
	Op any
}

// marshalEnvelope renders a complete SOAP 1.1 request document.
func marshalEnvelope(op any) ([]byte, error) {
	envelope := soapEnvelope{
		SoapNS: soapNS,
		TnsNS:  tnsNS,
		Body:   soapBody{Op: op},
	}
	data, err := xml.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal soap request: %w", err)
	}
	return []byte(xml.Header + string(data)), nil
}

// wireAuth is the merchant credential block carried by every request.
type wireAuth struct {
	ClientCode string `xml:"tns:CLIENT_CODE"`
	Username   string `xml:"tns:CLIENT_USERNAME"`
	Password   string `xml:"tns:CLIENT_PASSWORD"`
}

// wireCreds is embedded in every operation struct. It stays empty through
// validation and signing and is filled by the finalize step, immediately
// before transmission.
type wireCreds struct {
	Auth *wireAuth `xml:"tns:G,omitempty"`
	GUID string    `xml:"tns:GUID,omitempty"`
}

func (c *wireCreds) setCredentials(auth *wireAuth, guid string) {
	c.Auth = auth
	c.GUID = guid
}

// credentialed is satisfied by every wire operation struct via wireCreds.
type credentialed interface {
	setCredentials(auth *wireAuth, guid string)
}

type wireSale struct {
	XMLName xml.Name `xml:"tns:Sale"`
	wireCreds
	Mode         string     `xml:"tns:SecurityMode"`
	OrderID      string     `xml:"tns:OrderID"`
	Description  string     `xml:"tns:Description,omitempty"`
	Amount       string     `xml:"tns:Amount"`
	Total        string     `xml:"tns:Total"`
	Installments int        `xml:"tns:Installments"`
	CardHolder   string     `xml:"tns:CardHolderName,omitempty"`
	CardNumber   string     `xml:"tns:CardNumber,omitempty"`
	ExpiryMonth  string     `xml:"tns:ExpiryMonth,omitempty"`
	ExpiryYear   string     `xml:"tns:ExpiryYear,omitempty"`
	CVV          string     `xml:"tns:CVV,omitempty"`
	Token        string     `xml:"tns:Token,omitempty"`
	ClientIP     string     `xml:"tns:ClientIP,omitempty"`
	ClientPhone  string     `xml:"tns:ClientPhone,omitempty"`
	ErrorURL     string     `xml:"tns:ErrorURL,omitempty"`
	SuccessURL   string     `xml:"tns:SuccessURL,omitempty"`
	Extra        *wireExtra `xml:"tns:Extra,omitempty"`
	Signature    string     `xml:"tns:Signature"`
}

type wirePreAuth struct {
	XMLName xml.Name `xml:"tns:PreAuth"`
	wireCreds
	OrderID      string     `xml:"tns:OrderID"`
	Description  string     `xml:"tns:Description,omitempty"`
	Amount       string     `xml:"tns:Amount"`
	Total        string     `xml:"tns:Total"`
	Installments int        `xml:"tns:Installments"`
	CardHolder   string     `xml:"tns:CardHolderName,omitempty"`
	CardNumber   string     `xml:"tns:CardNumber,omitempty"`
	ExpiryMonth  string     `xml:"tns:ExpiryMonth,omitempty"`
	ExpiryYear   string     `xml:"tns:ExpiryYear,omitempty"`
	CVV          string     `xml:"tns:CVV,omitempty"`
	Token        string     `xml:"tns:Token,omitempty"`
	ClientIP     string     `xml:"tns:ClientIP,omitempty"`
	Extra        *wireExtra `xml:"tns:Extra,omitempty"`
}

type wireCapture struct {
	XMLName xml.Name `xml:"tns:Capture"`
	wireCreds
	OrderID string `xml:"tns:OrderID"`
	Amount  string `xml:"tns:Amount"`
}

type wireVoidPreAuth struct {
	XMLName xml.Name `xml:"tns:VoidPreAuth"`
	wireCreds
	OrderID string `xml:"tns:OrderID"`
}

type wireCancel struct {
	XMLName xml.Name `xml:"tns:Cancel"`
	wireCreds
	OrderID string `xml:"tns:OrderID"`
}

type wireRefund struct {
	XMLName xml.Name `xml:"tns:Refund"`
	wireCreds
	OrderID string `xml:"tns:OrderID"`
	Amount  string `xml:"tns:Amount"`
}

type wireComplete3D struct {
	XMLName xml.Name `xml:"tns:Complete3D"`
	wireCreds
	OrderID string `xml:"tns:OrderID"`
	MDToken string `xml:"tns:MD"`
}

type wireForeignSale struct {
	XMLName xml.Name `xml:"tns:ForeignSale"`
	wireCreds
	OrderID     string `xml:"tns:OrderID"`
	Description string `xml:"tns:Description,omitempty"`
	Amount      string `xml:"tns:Amount"`
	Total       string `xml:"tns:Total"`
	Currency    string `xml:"tns:Currency"`
	CardHolder  string `xml:"tns:CardHolderName"`
	CardNumber  string `xml:"tns:CardNumber"`
	ExpiryMonth string `xml:"tns:ExpiryMonth"`
	ExpiryYear  string `xml:"tns:ExpiryYear"`
	CVV         string `xml:"tns:CVV"`
	ClientIP    string `xml:"tns:ClientIP,omitempty"`
	Signature   string `xml:"tns:Signature"`
}

type wireStoreCard struct {
	XMLName xml.Name `xml:"tns:StoreCard"`
	wireCreds
	CardHolder  string `xml:"tns:CardHolderName"`
	CardNumber  string `xml:"tns:CardNumber"`
	ExpiryMonth string `xml:"tns:ExpiryMonth"`
	ExpiryYear  string `xml:"tns:ExpiryYear"`
	CVV         string `xml:"tns:CVV"`
	DisplayName string `xml:"tns:DisplayName"`
	OwnerRef    string `xml:"tns:OwnerRef,omitempty"`
}

type wireChargeCard struct {
	XMLName xml.Name `xml:"tns:ChargeCard"`
	wireCreds
	Token        string `xml:"tns:Token"`
	OrderID      string `xml:"tns:OrderID"`
	Description  string `xml:"tns:Description,omitempty"`
	Amount       string `xml:"tns:Amount"`
	Total        string `xml:"tns:Total"`
	Installments int    `xml:"tns:Installments"`
	ClientIP     string `xml:"tns:ClientIP,omitempty"`
}

type wireDeleteCard struct {
	XMLName xml.Name `xml:"tns:DeleteCard"`
	wireCreds
	Token string `xml:"tns:Token"`
}

type wireListCards struct {
	XMLName xml.Name `xml:"tns:ListCards"`
	wireCreds
}

type wireBinLookup struct {
	XMLName xml.Name `xml:"tns:BinLookup"`
	wireCreds
	BIN string `xml:"tns:BIN"`
}

type wireInstallmentRates struct {
	XMLName xml.Name `xml:"tns:InstallmentRates"`
	wireCreds
}

type wireQuery struct {
	XMLName xml.Name `xml:"tns:QueryTransaction"`
	wireCreds
	OrderID string `xml:"tns:OrderID"`
}

type wireListTransactions struct {
	XMLName xml.Name `xml:"tns:ListTransactions"`
	wireCreds
	From string `xml:"tns:From"`
	To   string `xml:"tns:To"`
}

type wireSettlement struct {
	XMLName xml.Name `xml:"tns:SettlementSummary"`
	wireCreds
	From string `xml:"tns:From"`
	To   string `xml:"tns:To"`
}

type wireSendReceipt struct {
	XMLName xml.Name `xml:"tns:SendReceipt"`
	wireCreds
	TransactionRef string `xml:"tns:TransactionRef"`
	Email          string `xml:"tns:Email"`
}

// wireExtra marshals the merchant metadata slots as tns:Extra1..tns:Extra5.
type wireExtra struct {
	Fields map[int]string
}

func (m wireExtra) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	keys := make([]int, 0, len(m.Fields))
	for k := range m.Fields {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		fieldName := fmt.Sprintf("tns:Extra%d", k)
		el := xml.StartElement{Name: xml.Name{Local: fieldName}}
		if err := e.EncodeElement(m.Fields[k], el); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// ============================================
// SOAP Response Parsing
// ============================================

// soapFault represents a SOAP fault element in a gateway response.
type soapFault struct {
	code   string
	reason string
}

// parseResponseBody extracts the operation response element from a SOAP
// response document. It returns the first element under soap:Body, or the
// fault when the gateway answered with one. Responses use heterogeneous
// shapes per operation, so navigation is done with etree rather than a
// fixed unmarshal target.
func parseResponseBody(raw []byte) (*etree.Element, *soapFault, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, nil, fmt.Errorf("parse soap response: %w", err)
	}

	root := doc.Root()
	if root == nil || localName(root.Tag) != "Envelope" {
		return nil, nil, fmt.Errorf("soap envelope missing")
	}

	body := findChildLocal(root, "Body")
	if body == nil {
		return nil, nil, fmt.Errorf("soap Body not found")
	}

	if fault := findChildLocal(body, "Fault"); fault != nil {
		return nil, &soapFault{
			code:   childText(fault, "faultcode"),
			reason: strings.TrimSpace(childText(fault, "faultstring")),
		}, nil
	}

	for _, child := range body.ChildElements() {
		return child, nil, nil
	}
	return nil, nil, fmt.Errorf("soap Body is empty")
}

// resultElement returns the <OpResult> element inside an <OpResponse>
// wrapper, falling back to the wrapper itself for operations that inline
// their fields.
func resultElement(opResp *etree.Element) *etree.Element {
	for _, child := range opResp.ChildElements() {
		if strings.HasSuffix(localName(child.Tag), "Result") {
			return child
		}
	}
	return opResp
}

func localName(tag string) string {
	if i := strings.LastIndex(tag, ":"); i >= 0 {
		return tag[i+1:]
	}
	return tag
}

func findChildLocal(el *etree.Element, local string) *etree.Element {
	for _, child := range el.ChildElements() {
		if localName(child.Tag) == local {
			return child
		}
	}
	return nil
}

// childText returns the trimmed text of the named child element, or "".
func childText(el *etree.Element, local string) string {
	child := findChildLocal(el, local)
	if child == nil {
		return ""
	}
	return strings.TrimSpace(child.Text())
}
