package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"os"
	"strconv"
	"time"

	"com.qubular.energy-bridge/pkg/util"
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/fxamacker/cbor/v2"
	piondtls "github.com/pion/dtls/v2"
	"github.com/plgd-dev/go-coap/v2/dtls"
	"github.com/plgd-dev/go-coap/v2/message"
)

// Usage: coap-client <path> [days]
//
//	coap-client d/smart-meter/r/electricity 7
//	coap-client d/boiler/p
func main() {
	log.SetHandler(cli.Default)

	certificate, err := util.LoadKeyAndCertificate("certs/client-key.pem", "certs/client.pem")
	if err != nil {
		log.Fatalf("Error loading client cert: %v", err)
	}
	certPool, err := util.LoadCertPool("certs/server.pem")
	if err != nil {
		log.Fatalf("Error loading server cert: %v", err)
	}

	addr := os.Getenv("BRIDGE_ADDR")
	if addr == "" {
		addr = "127.0.0.1:5689"
	}
	co, err := dtls.Dial(addr, &piondtls.Config{
		Certificates:         []tls.Certificate{*certificate},
		ExtendedMasterSecret: piondtls.RequireExtendedMasterSecret,
		RootCAs:              certPool,
	})
	if err != nil {
		log.Fatalf("Error dialing: %v", err)
	}
	defer co.Close()

	path := "d/smart-meter/r/electricity"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	var body []byte
	if len(os.Args) > 2 {
		days, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalf("Invalid days %q", os.Args[2])
		}
		body, err = cbor.Marshal(map[string]int{"days": days})
		if err != nil {
			log.Fatalf("Error encoding body: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := co.Post(ctx, path, message.AppCBOR, bytes.NewReader(body))
	if err != nil {
		log.Fatalf("Error sending request: %v", err)
	}
	log.WithField("code", resp.Code().String()).Info("trigger sent")
}
