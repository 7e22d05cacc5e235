/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package httpgw

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/hyperware-os/kernel/kerntypes"
	"github.com/hyperware-os/kernel/process"
)

// serveRpc implements the reserved /rpc:distro:sys/message binding: parse the RPC envelope, translate it
// into a KernelMessage targeted at the named process, and relay the
// Response back as a `{body, lazy_load_blob}` JSON envelope.
func (g *Gateway) serveRpc(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw, err := readLimited(w, r)
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	var env RpcEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "malformed RPC envelope: "+err.Error())
		return
	}
	target, err := kerntypes.ParseProcessId(env.Process)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "invalid process id: "+err.Error())
		return
	}
	node := g.node
	if env.Node != nil {
		node = *env.Node
	}

	var body []byte
	if env.Body != nil {
		body = []byte(*env.Body)
	}
	var blob *kerntypes.Blob
	if env.Data != nil {
		data, err := base64.StdEncoding.DecodeString(*env.Data)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "invalid base64 data: "+err.Error())
			return
		}
		blob = &kerntypes.Blob{Mime: env.Mime, Bytes: data}
	}

	args := process.SendRequestArgs{
		Target:          kerntypes.Address{Node: node, ProcessId: target},
		Body:            body,
		Metadata:        env.Metadata,
		ExpectsResponse: env.ExpectsResponse,
		Blob:            blob,
	}

	if env.ExpectsResponse == nil {
		g.sup.SendRequest(args)
		w.WriteHeader(http.StatusOK)
		return
	}

	resp, err := g.sup.SendAndAwaitResponse(args)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if resp.Err != nil {
		if resp.Err.Kind == kerntypes.NetErrTimeout {
			http.Error(w, "request timed out", http.StatusRequestTimeout)
		} else {
			writeJSONError(w, http.StatusInternalServerError, resp.Err.Error())
		}
		return
	}
	if resp.KM == nil || resp.KM.Message.Response == nil {
		writeJSONError(w, http.StatusInternalServerError, "empty response")
		return
	}

	out := RpcResponseEnvelope{Body: string(resp.KM.Message.Response.Body)}
	if resp.KM.Blob != nil {
		enc := base64.StdEncoding.EncodeToString(resp.KM.Blob.Bytes)
		out.LazyLoadBlob = &enc
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
