// Package otpclient retrieves SMS one-time passcodes for end-to-end tests.
//
// A Client wraps one SMS backend (MailSlurp, Twilio, Mailosaur or a
// caller-supplied Provider). Tests acquire a number, trigger an SMS from the
// system under test and block until the code arrives:
//
//	client, err := otpclient.New(otpclient.Config{
//		Provider:  otpclient.ProviderMailSlurp,
//		MailSlurp: otpclient.MailSlurpConfig{APIKey: otpclient.Secret(os.Getenv("MAILSLURP_API_KEY"))},
//	})
//	if err != nil {
//		return err
//	}
//	defer client.Cleanup(ctx)
//
//	phone, err := client.GetPhoneNumber(ctx)
//	// ... submit phone to the application under test ...
//	code, err := client.GetOTPCode(ctx, "", 0)
//
// Errors fall into three kinds, matched with errors.Is: ErrConfiguration
// (fix the setup, never retry), ErrProvider (the backend failed) and
// ErrTimeout (no code arrived in time).
package otpclient
