// Copyright (c) 2019 Cisco and/or its affiliates.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout is the timeout of REST requests sent to the agent.
const DefaultTimeout = 10 * time.Second

// GetAgentInfo sends GET request to the agent REST API at <server> and
// returns the response body.
func GetAgentInfo(server string, path string) ([]byte, error) {
	client := http.Client{
		Timeout: DefaultTimeout,
	}
	url := fmt.Sprintf("http://%s%s", server, path)
	logrus.Debugf("GET %s", url)
	res, err := client.Get(url)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s failed", url)
	}
	defer res.Body.Close()

	body, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read response of GET %s", url)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		logrus.Debugf("GET %s: %s", url, res.Status)
		return nil, errors.Errorf("GET %s returned %d: %s", url, res.StatusCode, string(body))
	}
	return body, nil
}
