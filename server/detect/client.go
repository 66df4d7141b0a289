package detect

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/ppecam/ppecam/pkg/requests"
)

// Names of the two detection services, used in ServiceError so that a
// failure in one call never corrupts interpretation of the other.
const (
	ServicePerson = "person-detector"
	ServicePPE    = "ppe-detector"
)

// ServiceError is a transport or HTTP failure calling one detection service.
type ServiceError struct {
	Service string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%v: %v", e.Service, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Client invokes the person and PPE detection services with a single frame
// payload. The two calls are issued concurrently, and are independent
// failure domains.
type Client struct {
	log       logs.Log
	personURL string
	ppeURL    string
	bearer    string // Optional: attached as Authorization header when calling upstream directly
	http      *http.Client
}

func NewClient(logger logs.Log, personURL, ppeURL, bearer string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		log:       logger,
		personURL: personURL,
		ppeURL:    ppeURL,
		bearer:    bearer,
		http:      &http.Client{Timeout: timeout},
	}
}

// Detect sends the JPEG frame to both services and waits for both responses.
// If either call fails, that failure is returned as a ServiceError (joined
// when both fail), but the other service's response is still returned and
// remains valid. A 200 response with an unparseable or partial body is not
// an error; it degrades to zero detections.
func (c *Client) Detect(ctx context.Context, jpeg []byte) (*PersonResponse, *PPEResponse, error) {
	body := &Request{
		DataframeRecords: []Record{{ImageB64: base64.StdEncoding.EncodeToString(jpeg)}},
	}

	var person *PersonResponse
	var ppe *PPEResponse
	var personErr, ppeErr error

	done := make(chan bool, 2)
	go func() {
		person, personErr = callService[PersonResponse](ctx, c, ServicePerson, c.personURL, body)
		done <- true
	}()
	go func() {
		ppe, ppeErr = callService[PPEResponse](ctx, c, ServicePPE, c.ppeURL, body)
		done <- true
	}()
	<-done
	<-done

	return person, ppe, errors.Join(personErr, ppeErr)
}

func callService[T any](ctx context.Context, c *Client, service, url string, body *Request) (*T, error) {
	var headers http.Header
	if c.bearer != "" {
		headers = http.Header{"Authorization": []string{"Bearer " + c.bearer}}
	}
	resp, err := requests.RequestJSON[T](ctx, c.http, "POST", url, headers, body)
	if err != nil {
		// A malformed body on a 200 response is tolerated as zero detections.
		// Anything else (transport, timeout, non-2xx) is a service failure.
		var jsonErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &jsonErr) || errors.As(err, &typeErr) {
			c.log.Warnf("Malformed response from %v, treating as zero detections: %v", service, err)
			return new(T), nil
		}
		return nil, &ServiceError{Service: service, Err: err}
	}
	return resp, nil
}
