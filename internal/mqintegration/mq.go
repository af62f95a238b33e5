// Package mqintegration implements the IBM MQ integration: connection
// lifecycle, put/get with retry and content-based selection, and the
// minimal RFH2 envelope used when a queue is addressed with
// header_type=rfh2.
package mqintegration

import (
	"fmt"
	"log/slog"

	"github.com/ibm-messaging/mq-golang/v5/ibmmq"

	"github.com/biometria-se/async-messaged/internal/message"
	"github.com/biometria-se/async-messaged/internal/transform"
)

const defaultSSLCipherSpec = "ECDHE_RSA_AES_256_GCM_SHA384"
const defaultHeartbeatInterval = 300

// Integration owns at most one live queue manager connection, matching
// the "one qmgr per worker" invariant from section 3.
type Integration struct {
	registry    *message.Registry
	logger      *slog.Logger
	transformers *transform.Registry

	qmgr         *ibmmq.MQQueueManager
	queueManager string
	messageWait  float64
	headerType   string
	lastCNO      *ibmmq.MQCNO
}

// New builds the integration and registers every action handler,
// first-registration-wins per section 4.3.
func New(logger *slog.Logger, transformers *transform.Registry) *Integration {
	i := &Integration{
		registry:     message.NewRegistry(),
		logger:       logger.With(slog.String("subcomponent", "mqintegration")),
		transformers: transformers,
	}

	i.registry.Register(i.handleConn, "CONN")
	i.registry.Register(i.handleDisc, "DISC")
	i.registry.Register(i.handlePut, "PUT", "SEND")
	i.registry.Register(i.handleGet, "GET", "RECEIVE")

	return i
}

func (i *Integration) Registry() *message.Registry { return i.registry }

func (i *Integration) Close() error {
	if i.qmgr == nil {
		return nil
	}
	err := i.qmgr.Disc()
	i.qmgr = nil
	if err != nil {
		return fmt.Errorf("disconnecting queue manager: %w", err)
	}
	return nil
}

func (i *Integration) connected() bool {
	return i.qmgr != nil
}

func (i *Integration) handleConn(req *message.Request) (*message.Response, error) {
	if req.Context == nil {
		return nil, fmt.Errorf("%w: CONN requires a context", message.ErrConfiguration)
	}

	if i.connected() {
		return &message.Response{Success: true, Message: "re-used connection"}, nil
	}

	queueManager, _ := req.Context.String("queue_manager")
	channel, _ := req.Context.String("channel")
	connection, _ := req.Context.String("connection")
	username, _ := req.Context.String("username")
	password, _ := req.Context.String("password")
	keyFile, _ := req.Context.String("key_file")
	certLabel := req.Context.StringOr("cert_label", username)
	sslCipher := req.Context.StringOr("ssl_cipher", defaultSSLCipherSpec)
	heartbeat := req.Context.Int("heartbeat_interval", defaultHeartbeatInterval)
	i.messageWait = float64(req.Context.Int("message_wait", 0))
	i.headerType, _ = req.Context.String("header_type")

	cd := ibmmq.NewMQCD()
	cd.ChannelName = channel
	cd.ConnectionName = connection
	cd.TransportType = ibmmq.MQXPT_TCP
	cd.HeartbeatInterval = int32(heartbeat)

	cno := ibmmq.NewMQCNO()
	cno.ClientConn = cd
	cno.Options = ibmmq.MQCNO_CLIENT_BINDING | ibmmq.MQCNO_RECONNECT

	if username != "" {
		csp := ibmmq.NewMQCSP()
		csp.AuthenticationType = ibmmq.MQCSP_AUTH_USER_ID_AND_PWD
		csp.UserId = username
		csp.Password = password
		cno.SecurityParms = csp
	}

	if keyFile != "" {
		sco := ibmmq.NewMQSCO()
		sco.KeyRepository = keyFile
		sco.CertificateLabel = certLabel
		cd.SSLCipherSpec = sslCipher
		cno.SSLConfig = sco
	}

	qmgr, err := ibmmq.Connx(queueManager, cno)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to queue manager %q: %v", message.ErrFatalBroker, queueManager, err)
	}

	i.qmgr = &qmgr
	i.queueManager = queueManager
	i.lastCNO = cno
	i.logger.Info("connected", slog.String("queue_manager", queueManager))

	return &message.Response{Success: true}, nil
}

func (i *Integration) handleDisc(req *message.Request) (*message.Response, error) {
	if err := i.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", message.ErrFatalBroker, err)
	}
	return &message.Response{Success: true, Message: "disconnected"}, nil
}
