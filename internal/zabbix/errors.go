/*
Copyright (C) 2024 Espen Stefansen <espenas+github@gmail.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package zabbix

import (
	"errors"
	"fmt"
)

// Causes of a failed delivery, checked with errors.Is
var (
	ErrUnreachable      = errors.New("collector unreachable")
	ErrProtocolMismatch = errors.New("collector protocol mismatch")
	ErrRejected         = errors.New("collector rejected data")
)

// Delivery stages reported in DeliveryError
const (
	StageEncode   = "encode"
	StageConnect  = "connect"
	StageSend     = "send"
	StageReceive  = "receive"
	StageResponse = "response"
)

// DeliveryError reports that a batch was not acknowledged. The batch must
// be treated as lost as a whole.
type DeliveryError struct {
	Stage string
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed at %s: %v", e.Stage, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
