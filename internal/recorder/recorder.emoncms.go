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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"thermoreg/internal/sensor"
)

// EmonCMS posts each sample as an input on an emoncms node.
type EmonCMS struct {
	addr   string
	apiKey string
	node   string
	client *http.Client
}

func NewEmonCMS(addr, apiKey, node string) *EmonCMS {
	return &EmonCMS{
		addr:   strings.TrimRight(addr, "/"),
		apiKey: apiKey,
		node:   node,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (e *EmonCMS) Record(ctx context.Context, s sensor.Sample) error {
	data, err := json.Marshal(map[string]float64{"temp": s.ValueC})
	if err != nil {
		return err
	}

	q := url.Values{}
	q.Set("node", e.node)
	q.Set("apikey", e.apiKey)
	q.Set("time", fmt.Sprint(s.CapturedAt.Unix()))
	q.Set("fulljson", string(data))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.addr+"/input/post?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("emoncms input/post: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	// emoncms answers 200 with {"success":false,...} on a bad key
	var reply struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &reply) == nil && reply.Success != nil && !*reply.Success {
		return fmt.Errorf("emoncms input/post: %s", reply.Message)
	}
	return nil
}

func (e *EmonCMS) String() string {
	return "emoncms:" + e.addr + "/" + e.node
}
