package grpc

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/vault/engine"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// hide streams progress messages followed by one message with the bundle.
func (s *GRPCServer) hide(req *structpb.Struct, stream grpc.ServerStream) error {
	ctx := stream.Context()

	user, err := userID(ctx)
	if err != nil {
		return err
	}

	hr, err := s.hideRequest(user, req)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(hr.PIN)

	var sendErr error
	hr.Progress = func(p models.EncryptionProgress) {
		if sendErr != nil {
			return
		}
		msg, err := newStruct(map[string]any{"progress": map[string]any{"phase": string(p.Phase), "percentage": p.Percentage}})
		if err == nil {
			err = stream.SendMsg(msg)
		}
		sendErr = err
	}

	b, err := s.vault.Hide(ctx, hr)
	if err != nil {
		return err
	}
	if sendErr != nil {
		s.logger.Warn(ctx, "progress not delivered", "error", sendErr)
	}

	msg, err := newStruct(map[string]any{"bundle": bundleValue(b)})
	if err != nil {
		return err
	}
	return stream.SendMsg(msg)
}

func (s *GRPCServer) hideRequest(user string, req *structpb.Struct) (engine.HideRequest, error) {
	hr := engine.HideRequest{
		UserID:       user,
		RealName:     stringField(req, "name"),
		DisguiseType: models.DisguiseType(stringField(req, "disguise_type")),
		PIN:          []byte(stringField(req, "pin")),
	}

	for i, v := range req.GetFields()["files"].GetListValue().GetValues() {
		f := v.GetStructValue()
		if f == nil {
			return hr, fmt.Errorf("%w: file #%d is not an object", common.ErrorValidation, i)
		}
		data, err := bytesField(f, "data")
		if err != nil {
			return hr, err
		}
		hr.Files = append(hr.Files, models.SourceFile{
			Name:     stringField(f, "name"),
			MimeType: stringField(f, "mime_type"),
			Size:     int64(len(data)),
			Reader:   bytes.NewReader(data),
		})
	}
	return hr, nil
}

func (s *GRPCServer) reveal(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	user, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	id, err := requiredString(req, "id")
	if err != nil {
		return nil, err
	}

	pin := []byte(stringField(req, "pin"))
	defer common.WipeByteArray(pin)

	b, files, err := s.vault.Reveal(ctx, user, id, pin)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, f := range files {
			common.WipeByteArray(f.Data)
		}
	}()

	out := make([]any, len(files))
	for i, f := range files {
		out[i] = map[string]any{"name": f.Name, "mime_type": f.MimeType, "data": f.Data}
	}
	m := bundleValue(b)
	m["files"] = out
	return newStruct(m)
}

func (s *GRPCServer) delete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	user, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	id, err := requiredString(req, "id")
	if err != nil {
		return nil, err
	}
	if err := s.vault.Delete(ctx, user, id); err != nil {
		return nil, err
	}
	return newStruct(map[string]any{"id": id})
}

func (s *GRPCServer) list(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	user, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	bundles, err := s.vault.List(ctx, user)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(bundles))
	for i, b := range bundles {
		out[i] = bundleValue(b)
	}
	return newStruct(map[string]any{"bundles": out})
}

func (s *GRPCServer) status(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	user, err := userID(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.vault.Status(ctx, user)
	if err != nil {
		return nil, err
	}
	return newStruct(statusValue(st))
}
