/*
Package ldap provides the directory client used by the Terraform LDAP provider.

# Architecture Overview

The package is organized into a few layers:

  - Link: one protocol handle plus the allow-list of operations that may be
    invoked on it. Anything outside the list fails with ErrUnsupportedOperation.
  - Request: fluent descriptions of an operation (LookupRequest for search,
    read and list; BindRequest, CompareRequest and friends for the rest).
  - Connection: executes a Request over a Link, normalizes the outcome into a
    Response and publishes lifecycle events.
  - Registry: the set of Modules attached to new connections, in order.

# Connection Management

DialLink resolves servers from explicit URLs, a host and port, or DNS SRV
records for a domain, and connects to the first endpoint that answers.
Authentication is not part of dialing; attach an AuthModule to bind each new
connection with a simple bind, SASL EXTERNAL or Kerberos (GSSAPI).

# Responses

Every executed request yields a Response carrying the result code, a
canonical message, the normalized entries, referrals and, for paged searches,
the cookie for the next page. Active Directory sub-codes embedded in
invalidCredentials diagnostics replace the generic code 49. OK reports success
for success, sizeLimitExceeded, compareFalse and compareTrue.

Attributes returned in ranged fragments ("member;range=0-1499") are merged
back under their base name.

# Events

A Connection emits "new" once, then "request" before and "response" or
"serverError" after every request. Handlers run synchronously in the order
their modules were registered.

# Example Usage

	cfg := ldap.DefaultConfig()
	cfg.Domain = "example.com"
	cfg.Username = "reader@EXAMPLE.COM"
	cfg.Password = "secret"

	link, err := ldap.DialLink(ctx, cfg)
	if err != nil {
		return err
	}

	auth := ldap.NewAuthModule(cfg)
	registry, err := ldap.NewRegistry(ctx, auth, ldap.NewLoggingModule())
	if err != nil {
		return err
	}

	conn, err := ldap.NewConnection(ctx, link, registry)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := auth.Err(conn); err != nil {
		return err
	}

	req := ldap.NewSearchRequest("DC=example,DC=com").
		Where("(objectClass=group)").
		Select("cn", "member").
		LimitTo(500)
	if _, err := req.EnablePagedMode(); err != nil {
		return err
	}

	for resp, err := range conn.Pages(ctx, req) {
		if err != nil {
			return err
		}
		for _, obj := range resp.Data {
			fmt.Println(obj.DN)
		}
	}
*/
package ldap
