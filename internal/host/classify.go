package host

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net/http"

	"inference-filter/internal/ctx"
	"inference-filter/internal/filter"
	"inference-filter/internal/shared"

	"github.com/labstack/echo/v4"
)

// NewClassifyMiddleware runs a filter exchange around every request. The
// request body is read in chunks of chunkSize, delivered to the exchange,
// and restored so the next handler forwards it unchanged.
func NewClassifyMiddleware(f *filter.Factory, chunkSize int) echo.MiddlewareFunc {
	if chunkSize <= 0 {
		chunkSize = shared.DefaultChunkSize
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc, tracked := c.(*ctx.Context)
			var id string
			if tracked {
				id = cc.Reqid
			} else {
				id = shared.NewExchangeID()
			}

			req := c.Request()
			h := &exchangeHost{req: req, res: c.Response()}
			req = req.WithContext(withHost(req.Context(), h))
			h.req = req
			c.SetRequest(req)

			ex := f.NewExchange(req.Context(), id, h)
			h.ex = ex
			defer func() {
				ex.OnDone()
				if tracked {
					lv := cc.LogValues
					lv.Task = f.Task()
					lv.Phase = ex.Phase().String()
					lv.Prediction = ex.Prediction()
					lv.InputBytes = ex.InputBytes()
					if err := ex.Err(); err != nil {
						var cerr *shared.ClassifyError
						if errors.As(err, &cerr) {
							lv.ErrorKind = string(cerr.Kind)
						}
						lv.AddError(err)
					}
				}
			}()

			endOfStream := req.Body == nil || req.Body == http.NoBody || req.ContentLength == 0
			ex.OnRequestHeaders(endOfStream)
			if h.replied {
				return nil
			}
			if !endOfStream {
				body, err := h.deliverBody(chunkSize)
				if err != nil {
					return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body").SetInternal(err)
				}
				if h.replied {
					return nil
				}
				req.Body = io.NopCloser(bytes.NewReader(body))
				req.GetBody = func() (io.ReadCloser, error) {
					return io.NopCloser(bytes.NewReader(body)), nil
				}
				req.ContentLength = int64(len(body))
				req.TransferEncoding = nil
			}
			return next(c)
		}
	}
}

// deliverBody reads the whole request body, handing it to the exchange one
// chunk at a time. Once the exchange stops asking for data the remainder is
// read without being delivered.
func (h *exchangeHost) deliverBody(chunkSize int) ([]byte, error) {
	br := bufio.NewReaderSize(h.req.Body, chunkSize)
	defer h.req.Body.Close()

	var all bytes.Buffer
	if h.req.ContentLength > 0 {
		all.Grow(int(h.req.ContentLength))
	}
	buf := make([]byte, chunkSize)
	for {
		n, err := io.ReadFull(br, buf)
		final := false
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			final = true
		case err != nil:
			return nil, err
		default:
			if _, perr := br.Peek(1); errors.Is(perr, io.EOF) {
				final = true
			}
		}

		chunk := buf[:n]
		all.Write(chunk)
		h.chunk = chunk
		action := h.ex.OnRequestBody(n, final)
		h.chunk = nil
		if h.replied || final {
			return all.Bytes(), nil
		}
		if action == filter.ActionContinue {
			if _, err := io.Copy(&all, br); err != nil {
				return nil, err
			}
			return all.Bytes(), nil
		}
	}
}
