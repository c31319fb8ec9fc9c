// Package gmail reads messages from a mailbox and reduces them to compact
// text records.
//
// The package has two halves:
//   - A typed MIME payload model (MimePayload, Message) with the extraction
//     helpers that turn it into a NormalizedEmail: ReduceHTML, ExtractBody,
//     HeaderValue and Normalize.
//   - Client, a read-only Gmail API source that lists message IDs for a Query
//     and converts full-format API messages into the payload model.
//
// Other mail sources (IMAP, mbox) convert into the same model so the
// extraction code is shared.
//
// Example usage:
//
//	client, err := gmail.NewClient(ctx, tokenSource)
//	if err != nil {
//	    return err
//	}
//
//	ids, err := client.ListMessageIDs(ctx, gmail.Query{Days: 7, MaxResults: 100})
//	if err != nil {
//	    return err
//	}
//
//	msg, err := client.GetMessage(ctx, ids[0])
//	if err != nil {
//	    return err
//	}
//	email := gmail.Normalize(msg, gmail.DefaultSnippetCharLimit, gmail.DefaultBodyCharLimit)
package gmail
