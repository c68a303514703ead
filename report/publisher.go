package report

import (
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/domino14/bjsim/stats"
)

// Publisher sends every report snapshot to a NATS subject as YAML.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

func NewPublisher(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("bjsim"))
	if err != nil {
		return nil, err
	}
	log.Info().Str("url", url).Str("subject", subject).Msg("nats-connected")
	return &Publisher{nc: nc, subject: subject}, nil
}

// Encode is the wire form of a snapshot.
func Encode(snap stats.Snapshot) ([]byte, error) {
	return yaml.Marshal(snap)
}

func (p *Publisher) Publish(snap stats.Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Reporter adapts Publish to a sim report callback. Publish errors are
// logged and dropped.
func (p *Publisher) Reporter() func(stats.Snapshot) {
	return func(snap stats.Snapshot) {
		if err := p.Publish(snap); err != nil {
			if p.nc.LastError() != nil {
				log.Error().Msgf("%v for publish", p.nc.LastError())
			}
			log.Err(err).Msg("publish-report")
		}
	}
}

func (p *Publisher) Close() {
	if err := p.nc.Drain(); err != nil {
		log.Err(err).Msg("nats-drain")
		p.nc.Close()
	}
}
