// internal/templates/layout.go
package templates

// DefaultLayout is the built-in email shell used when a tenant has none.
const DefaultLayout = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <style>
    body { margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background-color: #f4f4f7; }
    .wrapper { width: 100%; background-color: #f4f4f7; padding: 24px 0; }
    .container { max-width: 600px; margin: 0 auto; background-color: #ffffff; border-radius: 8px; overflow: hidden; }
    .header { background-color: {{brandColor}}; padding: 24px; text-align: center; }
    .header img { max-height: 48px; }
    .header h1 { color: #ffffff; margin: 8px 0 0; font-size: 20px; }
    .content { padding: 32px 24px; color: #333333; line-height: 1.6; }
    .footer { padding: 16px 24px; text-align: center; font-size: 12px; color: #888888; background-color: #f9f9f9; }
  </style>
</head>
<body>
  <div class="wrapper">
    <div class="container">
      <div class="header">
        {{#if logoUrl}}<img src="{{logoUrl}}" alt="{{companyName}}">{{/if}}
        {{#if companyName}}<h1>{{companyName}}</h1>{{/if}}
      </div>
      <div class="content">
        {{{content}}}
      </div>
      <div class="footer">
        {{{footerText}}}
      </div>
    </div>
  </div>
</body>
</html>
`
