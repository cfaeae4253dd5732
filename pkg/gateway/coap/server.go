// Package coap accepts refresh and poll requests from local devices over
// CoAP and DTLS and turns them into triggers.
package coap

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io/ioutil"
	"regexp"
	"strconv"
	"sync"
	"time"

	"com.qubular.energy-bridge/pkg/config"
	"com.qubular.energy-bridge/pkg/trigger"
	"com.qubular.energy-bridge/pkg/util"
	"github.com/apex/log"
	"github.com/fxamacker/cbor/v2"
	"github.com/pion/dtls/v2"
	coap "github.com/plgd-dev/go-coap/v2"
	"github.com/plgd-dev/go-coap/v2/message"
	"github.com/plgd-dev/go-coap/v2/message/codes"
	"github.com/plgd-dev/go-coap/v2/mux"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
)

type Publisher interface {
	Publish(ctx context.Context, m trigger.Message) error
}

type CoAPGateway struct {
	clients   sync.Map
	router    *mux.Router
	publisher Publisher
	config    config.GatewayConfig
	now       func() time.Time
	logger    *log.Entry
}

func NewGateway(publisher Publisher, config config.GatewayConfig) *CoAPGateway {
	return &CoAPGateway{
		router:    mux.NewRouter(),
		publisher: publisher,
		config:    config,
		now:       time.Now,
		logger:    log.WithField("module", "coap-gateway"),
	}
}

var (
	refreshPath = regexp.MustCompile(`^/?d/([^/]+)/r/([^/]+)$`)
	pollPath    = regexp.MustCompile(`^/?d/([^/]+)/p$`)

	errUnknownPath = errors.New("unknown path")
)

type refreshRequest struct {
	Days int `cbor:"days"`
}

// parseTrigger maps a POST path and optional body onto a trigger.
// d/<device>/r/<channel> asks for a sync of one channel, optionally limited to
// the last N days; d/<device>/p asks for a poll.
func parseTrigger(path string, format message.MediaType, body []byte, now time.Time) (trigger.Message, error) {
	if m := pollPath.FindStringSubmatch(path); m != nil {
		return trigger.NewPoll(m[1]), nil
	}
	m := refreshPath.FindStringSubmatch(path)
	if m == nil {
		return trigger.Message{}, errUnknownPath
	}

	var start, end time.Time
	if len(body) > 0 {
		var req refreshRequest
		switch format {
		case message.AppCBOR:
			if err := cbor.Unmarshal(body, &req); err != nil {
				return trigger.Message{}, fmt.Errorf("invalid cbor body: %w", err)
			}
		default:
			days, err := strconv.Atoi(string(bytes.TrimSpace(body)))
			if err != nil {
				return trigger.Message{}, fmt.Errorf("invalid days: %w", err)
			}
			req.Days = days
		}
		if req.Days < 0 {
			return trigger.Message{}, fmt.Errorf("invalid days: %d", req.Days)
		}
		if req.Days > 0 {
			end = now.Truncate(time.Minute)
			start = end.AddDate(0, 0, -req.Days)
		}
	}
	return trigger.NewSync(m[1], m[2], start, end), nil
}

// Middleware function, which will be called for each request.
func (cg *CoAPGateway) routerMiddleware(next mux.Handler) mux.Handler {
	return mux.HandlerFunc(func(w mux.ResponseWriter, r *mux.Message) {
		startTime := time.Now()
		status := codes.NotFound
		defer func() {
			ctx, err := tag.New(context.Background(),
				tag.Insert(KeyMethod, r.Code.String()),
				tag.Insert(KeyStatus, status.String()))
			if err != nil {
				cg.logger.Errorf("err creating metric for request %v", err)
			}
			stats.Record(ctx, MLatencyMs.M(sinceInMilliseconds(startTime)), MRequests.M(1))
		}()

		path, err := r.Options.Path()
		if err != nil || r.Code != codes.POST {
			cg.reply(w, status, "")
			return
		}
		status = cg.handleTrigger(w, r, path)
	})
}

func (cg *CoAPGateway) registerClient(next mux.Handler) mux.Handler {
	return mux.HandlerFunc(func(w mux.ResponseWriter, r *mux.Message) {
		path, err := r.Options.Path()
		if err == nil {
			if m := refreshPath.FindStringSubmatch(path); m != nil {
				cg.clients.Store(m[1], w.Client().RemoteAddr().String())
			} else if m := pollPath.FindStringSubmatch(path); m != nil {
				cg.clients.Store(m[1], w.Client().RemoteAddr().String())
			}
		}
		next.ServeCOAP(w, r)
	})
}

func (cg *CoAPGateway) handleTrigger(w mux.ResponseWriter, req *mux.Message, path string) codes.Code {
	var data []byte
	if req.Body != nil {
		var err error
		data, err = ioutil.ReadAll(req.Body)
		if err != nil {
			cg.logger.Warnf("cannot read request: %v", err)
			return cg.reply(w, codes.BadRequest, "")
		}
	}
	format, err := req.Options.ContentFormat()
	if err != nil {
		format = message.TextPlain
	}

	m, err := parseTrigger(path, format, data, cg.now())
	if errors.Is(err, errUnknownPath) {
		return cg.reply(w, codes.NotFound, "")
	}
	if err != nil {
		return cg.reply(w, codes.BadRequest, err.Error())
	}

	if err := cg.publisher.Publish(req.Context, m); err != nil {
		cg.logger.Errorf("Err publishing trigger: %v", err)
		return cg.reply(w, codes.ServiceUnavailable, "")
	}
	ctx, _ := tag.New(req.Context, tag.Insert(KeyKind, string(m.Kind)))
	stats.Record(ctx, MTriggers.M(1))

	cg.logger.WithFields(log.Fields{"device": m.DeviceID, "kind": m.Kind, "channel": m.Channel}).Info("trigger accepted")
	return cg.reply(w, codes.Changed, m.ID)
}

func (cg *CoAPGateway) reply(w mux.ResponseWriter, code codes.Code, body string) codes.Code {
	var payload *bytes.Reader
	if body != "" {
		payload = bytes.NewReader([]byte(body))
	}
	var err error
	if payload != nil {
		err = w.SetResponse(code, message.TextPlain, payload)
	} else {
		err = w.SetResponse(code, message.TextPlain, nil)
	}
	if err != nil {
		cg.logger.Errorf("cannot set response: %v", err)
	}
	return code
}

// ClientAddr returns the last address a device sent a request from.
func (cg *CoAPGateway) ClientAddr(deviceID string) (string, bool) {
	v, ok := cg.clients.Load(deviceID)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (cg *CoAPGateway) Start() {
	cg.router.Use(cg.registerClient)
	cg.router.Use(cg.routerMiddleware)

	cg.logger.Info("Starting CoAP Gateway...")
	if cg.config.Port > 0 {
		go func() {
			cg.logger.Fatalf("Error starting listener : %v",
				coap.ListenAndServe(
					"udp",
					":"+strconv.Itoa(cg.config.Port),
					cg.router,
				))
		}()
	}

	if cg.config.SslPort > 0 {
		certificate, err := util.EnsureCertificate(cg.config.KeyFile, cg.config.CertFile, "energy-bridge")
		if err != nil {
			cg.logger.Fatalf("err opening server cert: %v", err)
		}
		caFile := cg.config.ClientCAFile
		if caFile == "" {
			caFile = cg.config.CertFile
		}
		certPool, err := util.LoadCertPool(caFile)
		if err != nil {
			cg.logger.Fatalf("err opening client CA: %v", err)
		}

		go func() {
			cg.logger.Fatalf("Error starting dtls listener : %v",
				coap.ListenAndServeDTLS(
					"udp",
					":"+strconv.Itoa(cg.config.SslPort),
					&dtls.Config{
						Certificates:         []tls.Certificate{*certificate},
						ExtendedMasterSecret: dtls.RequireExtendedMasterSecret,
						ClientAuth:           dtls.RequireAndVerifyClientCert,
						ClientCAs:            certPool,
					},
					cg.router,
				))
		}()
	}
}
