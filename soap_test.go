package sanalpos_soap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalEnvelope(t *testing.T) {
	op := &wireCapture{OrderID: "ORD-1", Amount: "250,00"}
	op.setCredentials(&wireAuth{
		ClientCode: testClientCode,
		Username:   testUsername,
		Password:   testPassword,
	}, testGUID)

	data, err := marshalEnvelope(op)
	require.NoError(t, err)
	payload := string(data)

	assert.True(t, strings.HasPrefix(payload, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, payload, `xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"`)
	assert.Contains(t, payload, `xmlns:tns="https://pos.sanalodeme.com.tr/ws/"`)
	assert.Contains(t, payload, "<tns:Capture>")
	assert.Contains(t, payload, "<tns:CLIENT_CODE>"+testClientCode+"</tns:CLIENT_CODE>")
	assert.Contains(t, payload, "<tns:GUID>"+testGUID+"</tns:GUID>")
	assert.Contains(t, payload, "<tns:OrderID>ORD-1</tns:OrderID>")
	assert.Contains(t, payload, "<tns:Amount>250,00</tns:Amount>")
}

func TestMarshalEnvelope_CredentialsOmittedUntilSet(t *testing.T) {
	data, err := marshalEnvelope(&wireCancel{OrderID: "ORD-2"})
	require.NoError(t, err)

	payload := string(data)
	assert.NotContains(t, payload, "CLIENT_CODE")
	assert.NotContains(t, payload, "GUID")
}

func TestWireExtraMarshalsSlotsInOrder(t *testing.T) {
	op := &wireSale{
		Mode:    "NS",
		OrderID: "ORD-3",
		Amount:  "10,00",
		Total:   "10,00",
		Extra:   &wireExtra{Fields: map[int]string{3: "üçüncü", 1: "birinci"}},
	}

	data, err := marshalEnvelope(op)
	require.NoError(t, err)
	payload := string(data)

	assert.Contains(t, payload, "<tns:Extra1>birinci</tns:Extra1>")
	assert.Contains(t, payload, "<tns:Extra3>üçüncü</tns:Extra3>")
	assert.Less(t, strings.Index(payload, "Extra1"), strings.Index(payload, "Extra3"),
		"slots are emitted in ascending order regardless of map iteration")
}

func TestParseResponseBody(t *testing.T) {
	raw := []byte(`<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <SaleResponse xmlns="https://pos.sanalodeme.com.tr/ws/">
      <SaleResult>
        <Code>100200300</Code>
        <Message> approved </Message>
      </SaleResult>
    </SaleResponse>
  </soap:Body>
</soap:Envelope>`)

	opResp, fault, err := parseResponseBody(raw)
	require.NoError(t, err)
	require.Nil(t, fault)

	result := resultElement(opResp)
	assert.Equal(t, "SaleResult", localName(result.Tag))
	assert.Equal(t, "100200300", childText(result, "Code"))
	assert.Equal(t, "approved", childText(result, "Message"), "text is trimmed")
	assert.Empty(t, childText(result, "NoSuchChild"))
}

func TestParseResponseBody_Fault(t *testing.T) {
	raw := []byte(`<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <soap:Fault>
      <faultcode>soap:Client</faultcode>
      <faultstring>
        Invalid SOAPAction header
      </faultstring>
    </soap:Fault>
  </soap:Body>
</soap:Envelope>`)

	_, fault, err := parseResponseBody(raw)
	require.NoError(t, err)
	require.NotNil(t, fault)
	assert.Equal(t, "soap:Client", fault.code)
	assert.Equal(t, "Invalid SOAPAction header", fault.reason)
}

func TestParseResponseBody_Malformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"not xml",
		`<Envelope/>`,
		`<e:Envelope xmlns:e="http://schemas.xmlsoap.org/soap/envelope/"><e:Body/></e:Envelope>`,
	} {
		_, _, err := parseResponseBody([]byte(raw))
		assert.Error(t, err, "input: %q", raw)
	}
}

func TestResultElementFallsBackToWrapper(t *testing.T) {
	raw := []byte(`<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <SendReceiptResponse><Code>1</Code></SendReceiptResponse>
  </soap:Body>
</soap:Envelope>`)

	opResp, _, err := parseResponseBody(raw)
	require.NoError(t, err)
	result := resultElement(opResp)
	assert.Equal(t, "SendReceiptResponse", localName(result.Tag))
	assert.Equal(t, "1", childText(result, "Code"))
}
