// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package whatsapp

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"

	"github.com/ManuGH/wabridge/internal/domain/session/ports"
)

// uploader is the part of *whatsmeow.Client that media sends need.
type uploader interface {
	Upload(ctx context.Context, plaintext []byte, appInfo whatsmeow.MediaType) (whatsmeow.UploadResponse, error)
}

// buildMessage turns outbound content into a protocol message. Media is
// uploaded first.
func buildMessage(ctx context.Context, up uploader, content ports.Content) (*waE2E.Message, error) {
	switch ct := content.(type) {
	case ports.Text:
		if ct.QuotedID == "" {
			return &waE2E.Message{Conversation: proto.String(ct.Body)}, nil
		}
		return &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String(ct.Body),
			ContextInfo: &waE2E.ContextInfo{StanzaID: proto.String(ct.QuotedID)},
		}}, nil
	case ports.MediaUpload:
		return buildMedia(ctx, up, ct)
	case ports.Buttons:
		return &waE2E.Message{ButtonsMessage: buildButtons(ct)}, nil
	case ports.List:
		return &waE2E.Message{ListMessage: buildList(ct)}, nil
	case ports.Poll:
		return buildPoll(ct)
	case ports.Template:
		return nativeFlow(ct.Text, ct.Footer, ct.Buttons)
	case ports.Interactive:
		return nativeFlow(ct.Text, ct.Footer, ct.Buttons)
	case ports.Carousel:
		return buildCarousel(ct)
	}
	return nil, fmt.Errorf("%T: %w", content, ports.ErrUnsupportedContent)
}

func mediaTypeFor(kind ports.MediaKind) whatsmeow.MediaType {
	switch kind {
	case ports.MediaImage, ports.MediaSticker:
		return whatsmeow.MediaImage
	case ports.MediaVideo:
		return whatsmeow.MediaVideo
	case ports.MediaAudio, ports.MediaVoice:
		return whatsmeow.MediaAudio
	}
	return whatsmeow.MediaDocument
}

func buildMedia(ctx context.Context, up uploader, m ports.MediaUpload) (*waE2E.Message, error) {
	kind := ports.MediaKindFor(m.Mimetype)
	res, err := up.Upload(ctx, m.Data, mediaTypeFor(kind))
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", kind, translateErr(err))
	}
	size := proto.Uint64(res.FileLength)
	var caption *string
	if m.Caption != "" {
		caption = proto.String(m.Caption)
	}

	switch kind {
	case ports.MediaImage:
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption: caption, Mimetype: proto.String(m.Mimetype),
			URL: proto.String(res.URL), DirectPath: proto.String(res.DirectPath), MediaKey: res.MediaKey,
			FileEncSHA256: res.FileEncSHA256, FileSHA256: res.FileSHA256, FileLength: size,
		}}, nil
	case ports.MediaSticker:
		return &waE2E.Message{StickerMessage: &waE2E.StickerMessage{
			Mimetype: proto.String(m.Mimetype),
			URL:      proto.String(res.URL), DirectPath: proto.String(res.DirectPath), MediaKey: res.MediaKey,
			FileEncSHA256: res.FileEncSHA256, FileSHA256: res.FileSHA256, FileLength: size,
		}}, nil
	case ports.MediaVideo:
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			Caption: caption, Mimetype: proto.String(m.Mimetype),
			URL: proto.String(res.URL), DirectPath: proto.String(res.DirectPath), MediaKey: res.MediaKey,
			FileEncSHA256: res.FileEncSHA256, FileSHA256: res.FileSHA256, FileLength: size,
		}}, nil
	case ports.MediaAudio, ports.MediaVoice:
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			Mimetype: proto.String(m.Mimetype), PTT: proto.Bool(kind == ports.MediaVoice),
			URL: proto.String(res.URL), DirectPath: proto.String(res.DirectPath), MediaKey: res.MediaKey,
			FileEncSHA256: res.FileEncSHA256, FileSHA256: res.FileSHA256, FileLength: size,
		}}, nil
	}
	name := m.Filename
	if name == "" {
		name = "file"
	}
	return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
		Caption: caption, Mimetype: proto.String(m.Mimetype), FileName: proto.String(name), Title: proto.String(name),
		URL: proto.String(res.URL), DirectPath: proto.String(res.DirectPath), MediaKey: res.MediaKey,
		FileEncSHA256: res.FileEncSHA256, FileSHA256: res.FileSHA256, FileLength: size,
	}}, nil
}

func buildButtons(b ports.Buttons) *waE2E.ButtonsMessage {
	msg := &waE2E.ButtonsMessage{
		ContentText: proto.String(b.Text),
		HeaderType:  waE2E.ButtonsMessage_EMPTY.Enum(),
	}
	if b.Footer != "" {
		msg.FooterText = proto.String(b.Footer)
	}
	for _, btn := range b.Buttons {
		msg.Buttons = append(msg.Buttons, &waE2E.ButtonsMessage_Button{
			ButtonID:   proto.String(btn.ID),
			ButtonText: &waE2E.ButtonsMessage_Button_ButtonText{DisplayText: proto.String(btn.Text)},
			Type:       waE2E.ButtonsMessage_Button_RESPONSE.Enum(),
		})
	}
	return msg
}

func buildList(l ports.List) *waE2E.ListMessage {
	msg := &waE2E.ListMessage{
		Title:       proto.String(l.Title),
		Description: proto.String(l.Text),
		ButtonText:  proto.String(l.ButtonText),
		ListType:    waE2E.ListMessage_SINGLE_SELECT.Enum(),
	}
	if l.Footer != "" {
		msg.FooterText = proto.String(l.Footer)
	}
	for _, s := range l.Sections {
		sec := &waE2E.ListMessage_Section{Title: proto.String(s.Title)}
		for _, r := range s.Rows {
			row := &waE2E.ListMessage_Row{RowID: proto.String(r.ID), Title: proto.String(r.Title)}
			if r.Description != "" {
				row.Description = proto.String(r.Description)
			}
			sec.Rows = append(sec.Rows, row)
		}
		msg.Sections = append(msg.Sections, sec)
	}
	return msg
}

// buildPoll mirrors whatsmeow's BuildPollCreation; the message secret is
// what later lets votes be decrypted.
func buildPoll(p ports.Poll) (*waE2E.Message, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("poll secret: %w", err)
	}
	opts := make([]*waE2E.PollCreationMessage_Option, 0, len(p.Options))
	for _, o := range p.Options {
		opts = append(opts, &waE2E.PollCreationMessage_Option{OptionName: proto.String(o)})
	}
	return &waE2E.Message{
		PollCreationMessage: &waE2E.PollCreationMessage{
			Name:                   proto.String(p.Name),
			Options:                opts,
			SelectableOptionsCount: proto.Uint32(uint32(p.SelectableCount)),
		},
		MessageContextInfo: &waE2E.MessageContextInfo{MessageSecret: secret},
	}, nil
}

// Native flow button names understood by the official clients.
const (
	flowURL        = "cta_url"
	flowCall       = "cta_call"
	flowQuickReply = "quick_reply"
)

func flowButtons(in []ports.ActionButton) ([]*waE2E.InteractiveMessage_NativeFlowMessage_NativeFlowButton, error) {
	out := make([]*waE2E.InteractiveMessage_NativeFlowMessage_NativeFlowButton, 0, len(in))
	for _, b := range in {
		var name string
		params := map[string]string{"display_text": b.Text}
		switch b.Type {
		case ports.ActionURL:
			name = flowURL
			params["url"] = b.URL
			params["merchant_url"] = b.URL
		case ports.ActionCall:
			name = flowCall
			params["phone_number"] = b.Phone
		case ports.ActionQuickReply:
			name = flowQuickReply
			params["id"] = b.ID
		default:
			return nil, fmt.Errorf("button type %q: %w", b.Type, ports.ErrUnsupportedContent)
		}
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		out = append(out, &waE2E.InteractiveMessage_NativeFlowMessage_NativeFlowButton{
			Name:             proto.String(name),
			ButtonParamsJSON: proto.String(string(raw)),
		})
	}
	return out, nil
}

func interactive(text, footer string, buttons []ports.ActionButton) (*waE2E.InteractiveMessage, error) {
	flow, err := flowButtons(buttons)
	if err != nil {
		return nil, err
	}
	im := &waE2E.InteractiveMessage{
		Body: &waE2E.InteractiveMessage_Body{Text: proto.String(text)},
		InteractiveMessage: &waE2E.InteractiveMessage_NativeFlowMessage_{
			NativeFlowMessage: &waE2E.InteractiveMessage_NativeFlowMessage{
				Buttons:        flow,
				MessageVersion: proto.Int32(1),
			},
		},
	}
	if footer != "" {
		im.Footer = &waE2E.InteractiveMessage_Footer{Text: proto.String(footer)}
	}
	return im, nil
}

func nativeFlow(text, footer string, buttons []ports.ActionButton) (*waE2E.Message, error) {
	im, err := interactive(text, footer, buttons)
	if err != nil {
		return nil, err
	}
	return &waE2E.Message{InteractiveMessage: im}, nil
}

func buildCarousel(c ports.Carousel) (*waE2E.Message, error) {
	cards := make([]*waE2E.InteractiveMessage, 0, len(c.Cards))
	for i, card := range c.Cards {
		im, err := interactive(card.Body, card.Footer, card.Buttons)
		if err != nil {
			return nil, fmt.Errorf("card %d: %w", i, err)
		}
		cards = append(cards, im)
	}
	msg := &waE2E.InteractiveMessage{
		Body: &waE2E.InteractiveMessage_Body{Text: proto.String(c.Text)},
		InteractiveMessage: &waE2E.InteractiveMessage_CarouselMessage_{
			CarouselMessage: &waE2E.InteractiveMessage_CarouselMessage{Cards: cards},
		},
	}
	if c.Footer != "" {
		msg.Footer = &waE2E.InteractiveMessage_Footer{Text: proto.String(c.Footer)}
	}
	return &waE2E.Message{InteractiveMessage: msg}, nil
}

// decodeContent reduces a protocol message to the fields the orchestrator
// understands. Poll votes need decryption and are filled in by the caller.
func decodeContent(m *waE2E.Message) ports.MessageContent {
	var mc ports.MessageContent
	if m == nil {
		return mc
	}
	switch {
	case m.Conversation != nil:
		mc.Text = m.GetConversation()
	case m.ExtendedTextMessage != nil:
		ext := m.GetExtendedTextMessage()
		mc.ExtendedText = &ports.ExtendedText{Text: ext.GetText()}
		if matched := ext.GetMatchedText(); matched != "" {
			mc.ExtendedText.Preview = &ports.LinkPreview{
				Title:       ext.GetTitle(),
				Description: ext.GetDescription(),
				URL:         matched,
				MatchedText: matched,
			}
		}
	case m.ImageMessage != nil:
		img := m.GetImageMessage()
		mc.Media = &ports.Media{Kind: ports.MediaImage, Mimetype: img.GetMimetype(), Caption: img.GetCaption(), Ref: img}
	case m.VideoMessage != nil:
		v := m.GetVideoMessage()
		mc.Media = &ports.Media{Kind: ports.MediaVideo, Mimetype: v.GetMimetype(), Caption: v.GetCaption(), Ref: v}
	case m.AudioMessage != nil:
		a := m.GetAudioMessage()
		kind := ports.MediaAudio
		if a.GetPTT() {
			kind = ports.MediaVoice
		}
		mc.Media = &ports.Media{Kind: kind, Mimetype: a.GetMimetype(), Ref: a}
	case m.DocumentMessage != nil:
		d := m.GetDocumentMessage()
		mc.Media = &ports.Media{Kind: ports.MediaDocument, Mimetype: d.GetMimetype(), Filename: d.GetFileName(), Caption: d.GetCaption(), Ref: d}
	case m.StickerMessage != nil:
		s := m.GetStickerMessage()
		mc.Media = &ports.Media{Kind: ports.MediaSticker, Mimetype: s.GetMimetype(), Ref: s}
	case m.ButtonsResponseMessage != nil:
		r := m.GetButtonsResponseMessage()
		mc.ButtonReply = &ports.ButtonReply{ID: r.GetSelectedButtonID(), Text: r.GetSelectedDisplayText()}
	case m.TemplateButtonReplyMessage != nil:
		r := m.GetTemplateButtonReplyMessage()
		mc.TemplateReply = &ports.ButtonReply{ID: r.GetSelectedID(), Text: r.GetSelectedDisplayText()}
	case m.ListResponseMessage != nil:
		r := m.GetListResponseMessage()
		mc.ListReply = &ports.ListReply{RowID: r.GetSingleSelectReply().GetSelectedRowID(), Title: r.GetTitle()}
	case m.InteractiveResponseMessage != nil:
		r := m.GetInteractiveResponseMessage()
		mc.InteractiveReply = &ports.InteractiveReply{
			ID:   flowResponseID(r.GetNativeFlowResponseMessage().GetParamsJSON()),
			Body: r.GetBody().GetText(),
		}
	case m.PollCreationMessage != nil, m.PollCreationMessageV3 != nil:
		p := m.GetPollCreationMessage()
		if p == nil {
			p = m.GetPollCreationMessageV3()
		}
		pc := &ports.PollCreation{Name: p.GetName()}
		for _, o := range p.GetOptions() {
			pc.Options = append(pc.Options, o.GetOptionName())
		}
		mc.PollCreation = pc
	case m.LocationMessage != nil:
		l := m.GetLocationMessage()
		mc.Location = &ports.Location{Latitude: l.GetDegreesLatitude(), Longitude: l.GetDegreesLongitude(), Name: l.GetName()}
	case m.ContactMessage != nil:
		ct := m.GetContactMessage()
		mc.Contact = &ports.ContactCard{DisplayName: ct.GetDisplayName(), VCard: ct.GetVcard()}
	}

	if ci := contextInfo(m); ci.GetStanzaID() != "" {
		mc.Quoted = &ports.QuotedInfo{
			ID:     ci.GetStanzaID(),
			Sender: ci.GetParticipant(),
			Body:   quotedBody(ci.GetQuotedMessage()),
		}
	}
	return mc
}

func contextInfo(m *waE2E.Message) *waE2E.ContextInfo {
	switch {
	case m.ExtendedTextMessage != nil:
		return m.GetExtendedTextMessage().GetContextInfo()
	case m.ImageMessage != nil:
		return m.GetImageMessage().GetContextInfo()
	case m.VideoMessage != nil:
		return m.GetVideoMessage().GetContextInfo()
	case m.AudioMessage != nil:
		return m.GetAudioMessage().GetContextInfo()
	case m.DocumentMessage != nil:
		return m.GetDocumentMessage().GetContextInfo()
	case m.StickerMessage != nil:
		return m.GetStickerMessage().GetContextInfo()
	}
	return nil
}

func quotedBody(m *waE2E.Message) string {
	if m == nil {
		return ""
	}
	if s := m.GetConversation(); s != "" {
		return s
	}
	if s := m.GetExtendedTextMessage().GetText(); s != "" {
		return s
	}
	if s := m.GetImageMessage().GetCaption(); s != "" {
		return s
	}
	return m.GetVideoMessage().GetCaption()
}

// flowResponseID extracts the selected button id from a native flow reply.
func flowResponseID(paramsJSON string) string {
	if paramsJSON == "" {
		return ""
	}
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil || params.ID == "" {
		return paramsJSON
	}
	return params.ID
}
