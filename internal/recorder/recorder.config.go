// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package recorder

import (
	"errors"
	"fmt"

	"thermoreg/internal/config"
)

// FromConfig builds a Fanout holding every sink that has an address
// configured. Sinks that fail to start are reported together; the ones
// that did start are closed again.
func FromConfig(conf *config.Config) (*Fanout, error) {
	rc := conf.Recorder
	f := NewFanout()
	var errs []error

	if rc.CSVDir != "" {
		if c, err := NewCSV(conf.Resolve(rc.CSVDir)); err != nil {
			errs = append(errs, fmt.Errorf("csv: %w", err))
		} else {
			f.Add(c.String(), c)
		}
	}
	if rc.EmonCMSAddr != "" {
		e := NewEmonCMS(rc.EmonCMSAddr, rc.EmonCMSApiKey, rc.EmonCMSNode)
		f.Add(e.String(), e)
	}
	if rc.MQTTBroker != "" {
		if m, err := NewMQTT(rc.MQTTBroker, rc.MQTTTopic, rc.EmonCMSNode); err != nil {
			errs = append(errs, err)
		} else {
			f.Add("mqtt:"+rc.MQTTBroker, m)
		}
	}
	if len(rc.KafkaBrokers) > 0 {
		if k, err := NewKafka(rc.KafkaBrokers, rc.KafkaTopic, rc.EmonCMSNode); err != nil {
			errs = append(errs, fmt.Errorf("kafka: %w", err))
		} else {
			f.Add("kafka:"+rc.KafkaTopic, k)
		}
	}

	if err := errors.Join(errs...); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}
